package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/clauselens/clauselens/internal/analysis"
)

// candidate is one piece of document context competing for a slot in
// the answer prompt.
type candidate struct {
	text       string
	simplified string
	clauseType analysis.ClauseType
	riskScore  float64
	source     string
	order      int
	score      float64
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "what": true,
	"when": true, "where": true, "will": true, "with": true, "this": true,
	"that": true, "have": true, "from": true, "they": true, "been": true,
	"does": true, "how": true, "its": true, "may": true, "shall": true,
	"any": true, "our": true, "your": true, "about": true, "there": true,
	"which": true, "their": true, "would": true, "could": true, "should": true,
}

var wordSplit = regexp.MustCompile(`[^a-z0-9]+`)

// keywords tokenizes text, dropping stopwords and short tokens.
func keywords(text string) []string {
	var out []string
	for _, w := range wordSplit.Split(strings.ToLower(text), -1) {
		if len(w) > 2 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// overlapRatio is the fraction of query keywords present in the text.
func overlapRatio(queryWords []string, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	set := make(map[string]bool)
	for _, w := range keywords(text) {
		set[w] = true
	}
	hits := 0
	for _, w := range queryWords {
		if set[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryWords))
}

const (
	overlapWeight    = 2.0
	categoryBoost    = 3.0
	highRiskBoost    = 0.5
	simplifiedWeight = 1.5
	strongScore      = 2.0
)

// rank scores candidates against the question and returns the top k in
// descending score, ties broken by document order. Purely lexical, so
// equal inputs always produce equal output.
func rank(question string, candidates []candidate, k int) []candidate {
	queryWords := keywords(question)
	boosted := make(map[analysis.ClauseType]bool)
	for _, ct := range analysis.MatchCategories(question) {
		boosted[ct] = true
	}

	for i := range candidates {
		c := &candidates[i]
		c.score = overlapRatio(queryWords, c.text) * overlapWeight
		if c.simplified != "" {
			c.score += overlapRatio(queryWords, c.simplified) * simplifiedWeight
		}
		if c.clauseType != "" && boosted[c.clauseType] {
			c.score += categoryBoost
		}
		if c.riskScore >= 7 {
			c.score += highRiskBoost
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	top := make([]candidate, 0, k)
	for _, c := range candidates {
		if len(top) == k {
			break
		}
		if c.score <= 0 {
			continue
		}
		top = append(top, c)
	}
	return top
}

// strongCount counts candidates above the strong-match threshold.
func strongCount(top []candidate) int {
	n := 0
	for _, c := range top {
		if c.score >= strongScore {
			n++
		}
	}
	return n
}
