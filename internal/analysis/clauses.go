package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/clauselens/clauselens/internal/engine"
)

// clausePatterns maps each clause category to the phrases that mark it.
// Used both by the keyword fallback extractor and by the query engine's
// category boost. Phrases are matched case-insensitively on lowercased text.
var clausePatterns = map[ClauseType][]string{
	ClausePaymentTerms: {
		"payment", "late fee", "rent", "deposit", "refund",
		"invoice", "due date", "interest rate",
	},
	ClauseTermination: {
		"terminate", "termination", "cancel", "cancellation",
		"notice period", "expiration",
	},
	ClauseLiability: {
		"liable", "liability", "damages", "limitation of liability",
		"hold harmless",
	},
	ClausePrivacy: {
		"personal data", "personal information", "privacy",
		"information we collect", "cookies",
	},
	ClauseIndemnification: {
		"indemnify", "indemnification", "indemnity",
	},
	ClauseDisputeResolution: {
		"arbitration", "dispute", "mediation", "class action",
	},
	ClauseIntellectualProperty: {
		"intellectual property", "copyright", "trademark", "patent",
		"license grant",
	},
	ClauseConfidentiality: {
		"confidential", "non-disclosure", "trade secret",
	},
	ClauseForceMajeure: {
		"force majeure", "act of god", "beyond reasonable control",
	},
	ClauseGoverningLaw: {
		"governing law", "governed by the laws", "jurisdiction", "venue",
	},
	ClauseAmendment: {
		"amendment", "amend this agreement", "modification of this agreement",
	},
	ClauseSeverability: {
		"severability", "severable", "remain in full force",
	},
}

// PatternsFor returns the marker phrases for a clause category.
func PatternsFor(ct ClauseType) []string {
	return clausePatterns[ct]
}

// MatchCategories returns the clause categories whose marker phrases
// appear in the text, in a fixed order.
func MatchCategories(text string) []ClauseType {
	lower := strings.ToLower(text)

	types := make([]ClauseType, 0, len(clausePatterns))
	for ct := range clausePatterns {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var matched []ClauseType
	for _, ct := range types {
		for _, p := range clausePatterns[ct] {
			if strings.Contains(lower, p) {
				matched = append(matched, ct)
				break
			}
		}
	}
	return matched
}

const clauseSystemPrompt = `You are a legal document analyst. Identify the distinct legal clauses in the passage, explain each in plain language a non-lawyer understands, and rate its risk to the signing party from 0 (harmless) to 10 (severe). Only report clauses actually present in the passage. Respond with JSON only.`

var clauseSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"clauses": {
			Type:        "array",
			Description: "identified clauses, each with type, original_text, simplified_text, risk_score, explanation, recommendations",
		},
	},
	Required: []string{"clauses"},
}

// wireClause is the shape the completion backend returns per clause.
type wireClause struct {
	Type            string   `json:"type"`
	OriginalText    string   `json:"original_text"`
	SimplifiedText  string   `json:"simplified_text"`
	RiskScore       *float64 `json:"risk_score"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
}

// ClauseExtractor turns document chunks into typed clauses, asking the
// completion backend first and falling back to keyword scanning when a
// chunk's completion call fails or returns garbage.
type ClauseExtractor struct {
	engine engine.Engine
	logger *slog.Logger
}

func NewClauseExtractor(eng engine.Engine, logger *slog.Logger) *ClauseExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClauseExtractor{engine: eng, logger: logger}
}

// ExtractChunk analyzes a single chunk. The returned error reports
// completion failure only; callers fall back to ScanKeywords in that case.
func (ce *ClauseExtractor) ExtractChunk(ctx context.Context, text string) ([]Clause, error) {
	messages := []engine.Message{
		{Role: "system", Content: clauseSystemPrompt},
		{Role: "user", Content: "Identify the legal clauses in this passage:\n\n" + text},
	}

	resp, err := ce.engine.Chat(ctx, messages, clauseSchema)
	if err != nil {
		return nil, fmt.Errorf("clause completion: %w", err)
	}

	raw, err := engine.ExtractJSON(resp)
	if err != nil {
		ce.logger.Debug("clause response not parseable", "error", err)
		return nil, fmt.Errorf("clause response: %w", err)
	}

	var payload struct {
		Clauses []wireClause `json:"clauses"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// Some models return the bare array instead of the wrapper object.
		if arrErr := json.Unmarshal([]byte(raw), &payload.Clauses); arrErr != nil {
			ce.logger.Debug("clause response malformed", "error", err)
			return nil, fmt.Errorf("clause response: %w", err)
		}
	}

	clauses := make([]Clause, 0, len(payload.Clauses))
	for _, wc := range payload.Clauses {
		if strings.TrimSpace(wc.OriginalText) == "" {
			continue
		}
		c := Clause{
			ID:             uuid.NewString(),
			Type:           normalizeClauseType(wc.Type),
			OriginalText:   strings.TrimSpace(wc.OriginalText),
			SimplifiedText: strings.TrimSpace(wc.SimplifiedText),
			Explanation:    strings.TrimSpace(wc.Explanation),
		}
		if wc.RiskScore != nil {
			c.RiskScore = clampScore(*wc.RiskScore)
		} else {
			c.RiskScore = KeywordRiskScore(c.OriginalText)
		}
		for _, r := range wc.Recommendations {
			if r = strings.TrimSpace(r); r != "" {
				c.Recommendations = append(c.Recommendations, r)
			}
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

var knownClauseTypes = map[ClauseType]bool{
	ClausePaymentTerms: true, ClauseTermination: true, ClauseLiability: true,
	ClausePrivacy: true, ClauseIndemnification: true, ClauseDisputeResolution: true,
	ClauseIntellectualProperty: true, ClauseConfidentiality: true,
	ClauseForceMajeure: true, ClauseGoverningLaw: true, ClauseAmendment: true,
	ClauseSeverability: true, ClauseOther: true,
}

func normalizeClauseType(s string) ClauseType {
	ct := ClauseType(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")))
	if knownClauseTypes[ct] {
		return ct
	}
	return ClauseOther
}

var sentenceSplit = regexp.MustCompile(`(?m)(?:\n\s*\n|(?:[.!?])\s+)`)

// ScanKeywords is the offline fallback extractor: it splits the chunk
// into sentences and paragraphs and emits a clause for each fragment
// matching a category pattern. Risk comes from the keyword scorer.
func (ce *ClauseExtractor) ScanKeywords(text string) []Clause {
	var clauses []Clause
	for _, fragment := range splitFragments(text) {
		lower := strings.ToLower(fragment)
		best, hits := ClauseOther, 0
		for ct, patterns := range clausePatterns {
			n := 0
			for _, p := range patterns {
				if strings.Contains(lower, p) {
					n++
				}
			}
			if n > hits || (n == hits && n > 0 && ct < best) {
				best, hits = ct, n
			}
		}
		if hits == 0 {
			continue
		}
		clauses = append(clauses, Clause{
			ID:           uuid.NewString(),
			Type:         best,
			OriginalText: fragment,
			RiskScore:    KeywordRiskScore(fragment),
			Explanation:  "Matched " + strings.ReplaceAll(string(best), "_", " ") + " terms; detailed review unavailable offline.",
		})
	}
	return clauses
}

// splitFragments yields sentence-or-paragraph sized pieces of text in
// document order, skipping fragments too short to be a clause.
func splitFragments(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceSplit.FindAllStringIndex(text, -1) {
		if frag := strings.TrimSpace(text[start:loc[1]]); len(frag) >= 20 {
			out = append(out, frag)
		}
		start = loc[1]
	}
	if frag := strings.TrimSpace(text[start:]); len(frag) >= 20 {
		out = append(out, frag)
	}
	return out
}

// Dedup removes near-duplicate clauses produced by overlapping chunks.
// Clauses whose normalized word sets overlap at or above the Jaccard
// threshold are considered the same; the first occurrence wins.
func Dedup(clauses []Clause, threshold float64) []Clause {
	kept := make([]Clause, 0, len(clauses))
	sets := make([]map[string]bool, 0, len(clauses))

	for _, c := range clauses {
		set := wordSet(c.OriginalText)
		dup := false
		for _, prev := range sets {
			if jaccard(set, prev) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
			sets = append(sets, set)
		}
	}
	return kept
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range nonWord.Split(strings.ToLower(text), -1) {
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for w := range small {
		if large[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
