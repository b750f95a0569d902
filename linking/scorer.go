package linking

import (
	"sort"
	"strings"
)

// Scoring model: additive bonuses on top of a fixed base, clamped at 1.0.
// The constants mirror the heuristics the linker was tuned with; the
// function is deterministic for a fixed (candidate, signal) pair.
const (
	baseScore        = 0.5
	typeMatchBonus   = 0.4
	adjacentBonus    = 0.2
	uriKeywordBonus  = 0.1
	descKeywordBonus = 0.15
	domainTermBonus  = 0.2
	confidenceWeight = 0.2
	maxScore         = 1.0
)

// typeTerms maps an expected entity type to the terms that count as an
// exact match in a candidate's raw type metadata.
var typeTerms = map[string][]string{
	TypeCompany: {"company", "corporation", "organisation", "organization"},
	TypePerson:  {"person", "human", "agent"},
	TypePlace:   {"place", "location", "city", "country", "region"},
	TypeProduct: {"product", "good", "device", "software"},
}

// adjacentTerms maps an expected entity type to terms that earn the
// smaller adjacent-category bonus. Only company has adjacents: a company
// mention often resolves to its product or brand entry.
var adjacentTerms = map[string][]string{
	TypeCompany: {"product", "brand"},
}

// workTerms is the fixed work-related vocabulary that boosts company
// candidates whose description reads like a business entry.
var workTerms = []string{
	"company", "corporation", "business", "technology", "software", "hardware", "employees",
}

// Scorer computes relevance scores for candidates against a context signal.
type Scorer struct{}

// Score computes the relevance of a candidate given a context signal.
// With a nil signal the score is the fixed base value.
func (Scorer) Score(c Candidate, signal *ContextSignal) float64 {
	if signal == nil {
		return baseScore
	}

	score := baseScore

	rawType := strings.ToLower(c.EntityType)
	if rawType != "" {
		if containsAny(rawType, typeTerms[signal.EntityType]) {
			score += typeMatchBonus
		} else if containsAny(rawType, adjacentTerms[signal.EntityType]) {
			score += adjacentBonus
		}
	}

	uri := strings.ToLower(c.URI)
	desc := strings.ToLower(c.Description)
	for _, keyword := range signal.Keywords {
		kw := strings.ToLower(keyword)
		if kw == "" {
			continue
		}
		if strings.Contains(uri, kw) {
			score += uriKeywordBonus
		}
		if desc != "" && strings.Contains(desc, kw) {
			score += descKeywordBonus
		}
	}

	if signal.EntityType == TypeCompany && desc != "" && containsAny(desc, workTerms) {
		score += domainTermBonus
	}

	score += signal.Confidence * confidenceWeight

	if score > maxScore {
		score = maxScore
	}
	return score
}

// Rank scores every candidate, sorts descending, and truncates to limit.
// Ties preserve candidate arrival order.
func (s Scorer) Rank(candidates []Candidate, signal *ContextSignal, limit int) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, ScoredCandidate{
			Candidate: c,
			Score:     s.Score(c, signal),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// containsAny reports whether s contains any of the terms as a substring.
func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
