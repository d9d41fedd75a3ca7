package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/clauselens/clauselens/internal/engine"
)

// categoryWeights skews the overall score toward the clause categories
// that hurt the most when they go wrong.
var categoryWeights = map[ClauseType]float64{
	ClauseLiability:            1.5,
	ClauseIndemnification:      1.4,
	ClausePaymentTerms:         1.3,
	ClauseTermination:          1.2,
	ClauseIntellectualProperty: 1.1,
	ClauseConfidentiality:      1.0,
	ClausePrivacy:              1.0,
	ClauseDisputeResolution:    0.9,
	ClauseGoverningLaw:         0.8,
	ClauseForceMajeure:         0.8,
	ClauseAmendment:            0.7,
	ClauseSeverability:         0.6,
	ClauseOther:                0.5,
}

// riskKeywords adjust the keyword score away from the 5.0 midpoint.
// Positive weights are terms that shift cost or power to the other party,
// negative ones are protections for the signer.
var riskKeywords = map[string]float64{
	"late fee":            2.0,
	"penalty":             1.5,
	"per day":             1.5,
	"non-refundable":      1.5,
	"sole discretion":     1.5,
	"without notice":      1.5,
	"class action waiver": 1.5,
	"waive":               1.2,
	"forfeit":             1.2,
	"liquidated damages":  1.0,
	"unlimited":           1.0,
	"indemnify":           1.0,
	"binding arbitration": 1.0,
	"automatic renewal":   1.0,
	"immediately due":     1.0,
	"no liability":        1.0,
	"as is":               0.8,

	"grace period":      -1.0,
	"pro rata":          -1.0,
	"opt out":           -1.0,
	"mutual":            -0.5,
	"reasonable notice": -0.5,
	"right to cure":     -0.8,
}

// KeywordRiskScore rates a clause without a model: start from the 5.0
// midpoint and shift by every risk keyword present, clamped to [0,10].
func KeywordRiskScore(text string) float64 {
	score := 5.0
	lower := strings.ToLower(text)
	for kw, w := range riskKeywords {
		if strings.Contains(lower, kw) {
			score += w
		}
	}
	return clampScore(score)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

// redFlagThreshold is the per-clause score above which a clause is
// surfaced as a red flag on its own.
const redFlagThreshold = 7.5

// DefaultCategoryWeights returns a copy of the built-in weight table so
// callers can layer configured overrides on top without touching it.
func DefaultCategoryWeights() map[ClauseType]float64 {
	out := make(map[ClauseType]float64, len(categoryWeights))
	for k, v := range categoryWeights {
		out[k] = v
	}
	return out
}

// OverallRisk computes the document score as the category-weighted mean
// of clause scores, plus document-level adjustments for risk
// concentration and missing protections. A nil weight table means the
// built-in defaults.
func OverallRisk(docType DocumentType, clauses []Clause, weightTable map[ClauseType]float64) float64 {
	if len(clauses) == 0 {
		return 0
	}
	if weightTable == nil {
		weightTable = categoryWeights
	}

	var weighted, weights float64
	highRisk := 0
	critical := false
	seen := make(map[ClauseType]bool)
	for _, c := range clauses {
		w, ok := weightTable[c.Type]
		if !ok {
			w = 1.0
		}
		weighted += c.RiskScore * w
		weights += w
		seen[c.Type] = true
		if c.RiskScore >= 7 {
			highRisk++
			if c.Type == ClauseLiability || c.Type == ClauseIndemnification {
				critical = true
			}
		}
	}
	score := weighted / weights

	ratio := float64(highRisk) / float64(len(clauses))
	switch {
	case ratio > 0.3:
		score += 0.5
	case ratio > 0.15:
		score += 0.2
	}
	if critical {
		score += 0.3
	}
	if missingProtections(docType, seen) {
		score += 0.2
	}
	return clampScore(score)
}

// missingProtections reports whether the document lacks the clause a
// signer of this document type would rely on.
func missingProtections(docType DocumentType, seen map[ClauseType]bool) bool {
	switch docType {
	case TypeRentalAgreement, TypeEmploymentContract, TypeLoanAgreement, TypePurchaseAgreement:
		return !seen[ClauseTermination]
	case TypeTermsOfService:
		return !seen[ClauseDisputeResolution]
	case TypePrivacyPolicy:
		return !seen[ClausePrivacy]
	default:
		return false
	}
}

// Categorize groups clauses into per-category aggregates, ordered by
// first appearance in the document.
func Categorize(clauses []Clause) []RiskCategory {
	type agg struct {
		order int
		sum   float64
		count int
	}
	byType := make(map[ClauseType]*agg)
	var order []ClauseType
	for i, c := range clauses {
		a, ok := byType[c.Type]
		if !ok {
			a = &agg{order: i}
			byType[c.Type] = a
			order = append(order, c.Type)
		}
		a.sum += c.RiskScore
		a.count++
	}

	cats := make([]RiskCategory, 0, len(order))
	for _, ct := range order {
		a := byType[ct]
		score := a.sum / float64(a.count)
		cats = append(cats, RiskCategory{
			Category:    string(ct),
			Score:       score,
			Description: categoryDescription(ct, score),
			ClauseCount: a.count,
		})
	}
	return cats
}

func categoryDescription(ct ClauseType, score float64) string {
	name := strings.ReplaceAll(string(ct), "_", " ")
	switch {
	case score >= 7.5:
		return fmt.Sprintf("High-risk %s terms that need careful review before signing", name)
	case score >= 5:
		return fmt.Sprintf("Moderate %s terms with conditions worth understanding", name)
	default:
		return fmt.Sprintf("Standard %s terms", name)
	}
}

// RedFlags collects the clauses severe enough to call out individually.
// Always non-nil.
func RedFlags(clauses []Clause) []string {
	flags := []string{}
	for _, c := range clauses {
		if c.RiskScore < redFlagThreshold {
			continue
		}
		flags = append(flags, fmt.Sprintf("%s clause (risk %.1f): %s",
			strings.ReplaceAll(string(c.Type), "_", " "), c.RiskScore, snippet(c.OriginalText, 140)))
	}
	return flags
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndexByte(text[:max], ' ')
	if cut < max/2 {
		cut = max
	}
	return text[:cut] + "..."
}

// Recommendations merges per-clause advice with overall-risk guidance,
// deduplicated, capped to keep the payload readable. Always non-nil.
func Recommendations(overall float64, clauses []Clause) []string {
	recs := []string{}
	seen := make(map[string]bool)
	add := func(r string) {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		recs = append(recs, strings.TrimSpace(r))
	}

	for _, c := range clauses {
		for _, r := range c.Recommendations {
			add(r)
		}
	}
	switch {
	case overall >= 7.5:
		add("This document carries significant risk; consult a lawyer before signing")
	case overall >= 5:
		add("Several terms favor the other party; negotiate the high-risk clauses before agreeing")
	default:
		add("Terms are largely standard; verify the details that matter to you before signing")
	}

	if len(recs) > 12 {
		recs = recs[:12]
	}
	return recs
}

// docTypeProfiles holds the vocabulary that marks each document type,
// used for offline classification and as validation of model output.
var docTypeProfiles = map[DocumentType][]string{
	TypeRentalAgreement:    {"lease", "landlord", "tenant", "rent", "premises", "security deposit"},
	TypeEmploymentContract: {"employee", "employer", "employment", "salary", "duties", "compensation"},
	TypeLoanAgreement:      {"loan", "borrower", "lender", "principal", "interest rate", "repayment"},
	TypeTermsOfService:     {"terms of service", "user", "account", "service", "acceptable use"},
	TypePrivacyPolicy:      {"privacy policy", "personal data", "information we collect", "cookies", "third parties"},
	TypePurchaseAgreement:  {"purchase", "buyer", "seller", "goods", "delivery", "warranty"},
}

var knownDocTypes = map[DocumentType]bool{
	TypeRentalAgreement: true, TypeEmploymentContract: true, TypeLoanAgreement: true,
	TypeTermsOfService: true, TypePrivacyPolicy: true, TypePurchaseAgreement: true,
	TypeOther: true,
}

var docTypeSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"document_type": {
			Type:        "string",
			Description: "one of rental_agreement, employment_contract, loan_agreement, terms_of_service, privacy_policy, purchase_agreement, other",
		},
	},
	Required: []string{"document_type"},
}

// Classifier determines the document type, asking the completion backend
// and validating its answer against the known categories.
type Classifier struct {
	engine engine.Engine
}

func NewClassifier(eng engine.Engine) *Classifier {
	return &Classifier{engine: eng}
}

// Classify returns the document type. On completion failure or an
// unrecognized answer it falls back to keyword profiling, so it never
// errors.
func (cl *Classifier) Classify(ctx context.Context, text string) DocumentType {
	head := text
	if len(head) > 3000 {
		head = head[:3000]
	}

	if cl.engine != nil {
		messages := []engine.Message{
			{Role: "system", Content: "Classify the legal document. Respond with JSON only."},
			{Role: "user", Content: "What kind of legal document is this?\n\n" + head},
		}
		if resp, err := cl.engine.Chat(ctx, messages, docTypeSchema); err == nil {
			if raw, err := engine.ExtractJSON(resp); err == nil {
				var payload struct {
					DocumentType string `json:"document_type"`
				}
				if json.Unmarshal([]byte(raw), &payload) == nil {
					dt := DocumentType(strings.ToLower(strings.TrimSpace(payload.DocumentType)))
					if knownDocTypes[dt] {
						return dt
					}
				}
			}
		}
	}
	return ClassifyKeywords(text)
}

// ClassifyKeywords picks the document type whose vocabulary profile
// matches the text best. Ties break on a fixed type order so the result
// is deterministic; fewer than two matches means TypeOther.
func ClassifyKeywords(text string) DocumentType {
	lower := strings.ToLower(text)

	types := make([]DocumentType, 0, len(docTypeProfiles))
	for dt := range docTypeProfiles {
		types = append(types, dt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	best, bestHits := TypeOther, 0
	for _, dt := range types {
		hits := 0
		for _, term := range docTypeProfiles[dt] {
			if strings.Contains(lower, term) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = dt, hits
		}
	}
	if bestHits < 2 {
		return TypeOther
	}
	return best
}
