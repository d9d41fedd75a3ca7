// Package query answers natural-language questions about analyzed
// documents. Context selection is deterministic lexical ranking over
// the stored clauses and archived chunks; the completion backend only
// phrases the answer, grounded in the selected context.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/chunk"
	"github.com/clauselens/clauselens/internal/engine"
)

// ResultSource provides completed analyses. Satisfied by jobs.Store.
type ResultSource interface {
	CompletedResult(documentID string) (*analysis.Result, error)
}

// ChunkSource provides archived document chunks. Satisfied by
// storage.Store. Optional; without it only clauses are searched.
type ChunkSource interface {
	GetChunks(ctx context.Context, documentID string) ([]chunk.Chunk, error)
}

// Response is the answer payload.
type Response struct {
	Answer          string   `json:"answer"`
	Confidence      float64  `json:"confidence"`
	RelevantClauses []string `json:"relevant_clauses"`
	Sources         []string `json:"sources"`
}

// Options tune the engine.
type Options struct {
	TopK int
}

// Engine answers questions about one analyzed document at a time.
type Engine struct {
	results ResultSource
	chunks  ChunkSource
	llm     engine.Engine
	topK    int
	logger  *slog.Logger
}

func NewEngine(results ResultSource, chunks ChunkSource, llm engine.Engine, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Engine{
		results: results,
		chunks:  chunks,
		llm:     llm,
		topK:    opts.TopK,
		logger:  logger,
	}
}

var answerSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"answer": {
			Type:        "string",
			Description: "the answer, grounded only in the provided document excerpts",
		},
		"confidence": {
			Type:        "number",
			Description: "how well the excerpts support the answer, 0 to 1",
		},
	},
	Required: []string{"answer", "confidence"},
}

// Answer resolves a question against the document's completed analysis.
// Errors from the result source pass through unchanged so callers can
// distinguish an unknown document from an engine problem.
func (e *Engine) Answer(ctx context.Context, documentID, question string) (*Response, error) {
	result, err := e.results.CompletedResult(documentID)
	if err != nil {
		return nil, err
	}

	candidates := e.collect(ctx, documentID, result)
	top := rank(question, candidates, e.topK)
	strong := strongCount(top)

	resp := &Response{
		RelevantClauses: []string{},
		Sources:         []string{},
	}
	for _, c := range top {
		text := c.text
		if c.simplified != "" {
			text = c.simplified
		}
		resp.RelevantClauses = append(resp.RelevantClauses, text)
		resp.Sources = append(resp.Sources, c.source)
	}

	answer, conf, err := e.compose(ctx, question, result, top)
	if err != nil {
		e.logger.Warn("answer composition degraded to extractive summary",
			"id", documentID, "error", err)
		answer, conf = fallbackAnswer(question, top), 0.2
	}
	if conf <= 0 {
		conf = lexicalConfidence(top)
	}
	switch {
	case strong >= 3:
		conf += 0.1
	case strong == 0:
		conf -= 0.3
	}
	resp.Answer = answer
	resp.Confidence = clamp01(conf)
	return resp, nil
}

// collect gathers candidate context in document order: clauses first,
// then archived chunks.
func (e *Engine) collect(ctx context.Context, documentID string, result *analysis.Result) []candidate {
	var candidates []candidate
	order := 0
	for i, c := range result.KeyClauses {
		candidates = append(candidates, candidate{
			text:       c.OriginalText,
			simplified: c.SimplifiedText,
			clauseType: c.Type,
			riskScore:  c.RiskScore,
			source:     fmt.Sprintf("clause %d (%s)", i+1, c.Type),
			order:      order,
		})
		order++
	}

	if e.chunks == nil {
		return candidates
	}
	chunks, err := e.chunks.GetChunks(ctx, documentID)
	if err != nil {
		e.logger.Debug("chunk lookup failed, answering from clauses only",
			"id", documentID, "error", err)
		return candidates
	}
	for _, ch := range chunks {
		candidates = append(candidates, candidate{
			text:   ch.Text,
			source: fmt.Sprintf("section %d", ch.Index+1),
			order:  order,
		})
		order++
	}
	return candidates
}

// compose asks the completion backend to phrase an answer from the
// selected context only.
func (e *Engine) compose(ctx context.Context, question string, result *analysis.Result, top []candidate) (string, float64, error) {
	if e.llm == nil {
		return "", 0, fmt.Errorf("no completion backend")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s. Overall risk score: %.1f/10.\n\nExcerpts:\n",
		result.DocumentType, result.OverallRiskScore)
	if len(top) == 0 {
		b.WriteString("(no relevant excerpts found)\n")
	}
	for i, c := range top {
		text := c.text
		if len(text) > 600 {
			text = text[:600]
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, c.source, text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)

	resp, err := e.llm.Chat(ctx, []engine.Message{
		{Role: "system", Content: "Answer questions about a legal document using only the numbered excerpts provided. If the excerpts do not contain the answer, say so. Respond with JSON only."},
		{Role: "user", Content: b.String()},
	}, answerSchema)
	if err != nil {
		return "", 0, err
	}

	raw, err := engine.ExtractJSON(resp)
	if err != nil {
		return "", 0, err
	}
	var payload struct {
		Answer     string  `json:"answer"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(payload.Answer) == "" {
		return "", 0, fmt.Errorf("empty answer")
	}
	return strings.TrimSpace(payload.Answer), clamp01(payload.Confidence), nil
}

// fallbackAnswer builds an extractive answer when no backend is
// reachable, so querying keeps working offline.
func fallbackAnswer(question string, top []candidate) string {
	if len(top) == 0 {
		return "The document does not appear to address this question."
	}
	var b strings.Builder
	b.WriteString("The most relevant parts of the document are:\n")
	for i, c := range top {
		if i == 3 {
			break
		}
		text := c.text
		if c.simplified != "" {
			text = c.simplified
		}
		text = strings.Join(strings.Fields(text), " ")
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(&b, "- %s\n", text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// lexicalConfidence maps the top candidate scores to [0,1] when the
// model does not report its own confidence.
func lexicalConfidence(top []candidate) float64 {
	if len(top) == 0 {
		return 0
	}
	var sum float64
	for _, c := range top {
		sum += c.score
	}
	avg := sum / float64(len(top))
	// A score around the strong threshold maps to mid confidence.
	return clamp01(avg / (2 * strongScore))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
