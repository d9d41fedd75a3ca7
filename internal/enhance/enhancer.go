// Package enhance runs the optional second analysis phase: a panel of
// specialist prompts that each contribute one perspective on an already
// completed analysis. Agents run concurrently and independently; a slow
// or failing agent costs its field, never the phase.
package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/engine"
)

// agent is one specialist perspective. The assign hook writes the
// agent's answer into its enhancement field.
type agent struct {
	id     string
	prompt string
	assign func(*analysis.Enhancement, string)
}

var agents = []agent{
	{
		id:     "legal_researcher",
		prompt: "You are a legal researcher. Identify the legal precedents and statutory rules most relevant to the risky clauses below, and what they mean for the signer.",
		assign: func(e *analysis.Enhancement, s string) { e.LegalPrecedentResearch = s },
	},
	{
		id:     "consumer_advocate",
		prompt: "You are a consumer rights advocate. Explain which consumer protections apply to this document and where the terms may overreach them.",
		assign: func(e *analysis.Enhancement, s string) { e.ConsumerRightsAnalysis = s },
	},
	{
		id:     "compliance_expert",
		prompt: "You are a regulatory compliance expert. Assess the document for compliance concerns (data protection, lending rules, employment law as applicable).",
		assign: func(e *analysis.Enhancement, s string) { e.ComplianceAssessment = s },
	},
	{
		id:     "negotiation_advisor",
		prompt: "You are a contract negotiation advisor. For each high-risk clause, suggest the concrete counter-terms the signer should ask for.",
		assign: func(e *analysis.Enhancement, s string) { e.NegotiationGuidance = s },
	},
	{
		id:     "solutions_finder",
		prompt: "You are a practical solutions researcher. Suggest alternatives the signer could consider if these terms cannot be improved.",
		assign: func(e *analysis.Enhancement, s string) { e.AlternativesResearch = s },
	},
}

// Options tune the enhancement phase.
type Options struct {
	TaskTimeout        time.Duration
	MaxConcurrentTasks int
}

func (o *Options) fill() {
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 60 * time.Second
	}
	if o.MaxConcurrentTasks <= 0 {
		o.MaxConcurrentTasks = len(agents)
	}
}

// Enhancer fans a completed analysis out to the specialist agents.
type Enhancer struct {
	engine engine.Engine
	opts   Options
	logger *slog.Logger
}

func New(eng engine.Engine, opts Options, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fill()
	return &Enhancer{engine: eng, opts: opts, logger: logger}
}

// Enhance runs every agent against the result. It never returns an
// error: agents that fail or time out simply do not appear in the
// returned enhancement, and agents_used lists only those that answered.
func (e *Enhancer) Enhance(ctx context.Context, result *analysis.Result) *analysis.Enhancement {
	start := time.Now()
	briefing := buildBriefing(result)

	answers := make([]string, len(agents))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(e.opts.MaxConcurrentTasks)
	for i, ag := range agents {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, e.opts.TaskTimeout)
			defer cancel()

			resp, err := e.engine.Chat(actx, []engine.Message{
				{Role: "system", Content: ag.prompt + " Be specific and concise."},
				{Role: "user", Content: briefing},
			}, nil)
			if err != nil {
				e.logger.Warn("enhancement agent failed", "agent", ag.id, "error", err)
				return nil
			}
			resp = strings.TrimSpace(resp)
			if resp == "" {
				e.logger.Warn("enhancement agent returned nothing", "agent", ag.id)
				return nil
			}
			mu.Lock()
			answers[i] = resp
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	enh := &analysis.Enhancement{AgentsUsed: []string{}}
	for i, ag := range agents {
		if answers[i] == "" {
			continue
		}
		ag.assign(enh, answers[i])
		enh.AgentsUsed = append(enh.AgentsUsed, ag.id)
	}
	enh.Enhanced = len(enh.AgentsUsed) > 0
	enh.TimeSeconds = time.Since(start).Seconds()
	return enh
}

// buildBriefing condenses the analysis into the shared context every
// agent receives. Clause text is capped so five concurrent prompts stay
// within a small model's context window.
func buildBriefing(result *analysis.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s\nOverall risk score: %.1f/10\n",
		result.DocumentType, result.OverallRiskScore)

	if len(result.RedFlags) > 0 {
		b.WriteString("\nRed flags:\n")
		for _, f := range result.RedFlags {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\nKey clauses:\n")
	for i, c := range result.KeyClauses {
		if i == 10 {
			fmt.Fprintf(&b, "(and %d more clauses)\n", len(result.KeyClauses)-i)
			break
		}
		text := c.SimplifiedText
		if text == "" {
			text = c.OriginalText
		}
		if len(text) > 300 {
			text = text[:300]
		}
		fmt.Fprintf(&b, "- [%s, risk %.1f] %s\n", c.Type, c.RiskScore, text)
	}
	return b.String()
}
