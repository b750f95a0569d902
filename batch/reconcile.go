package batch

import "github.com/c360studio/semlink/linking"

// Row is one reconciled output record. Empty CanonicalName or URI mark
// join misses; rows survive misses rather than being dropped, so output
// cardinality always equals distinct input cardinality.
type Row struct {
	Mention       string   `json:"mention"`
	Context       string   `json:"context"`
	CanonicalName string   `json:"canonical_name"`
	EntityType    string   `json:"entity_type"`
	Confidence    *float64 `json:"confidence"`
	Keywords      []string `json:"keywords"`
	Description   string   `json:"description"`
	URI           string   `json:"kb_uri"`
}

// Reconcile merges the three stage tables into one row per distinct
// (mention, context) input pair, in first-occurrence input order:
// context rows join by pair, canonical names by mention, URIs by
// canonical name. Misses leave fields empty.
func Reconcile(pairs []linking.Mention, contextRows []ContextRow, canonicalRows []CanonicalRow, uriRows []URIRow) []Row {
	ctxByPair := make(map[string]ContextRow, len(contextRows))
	for _, r := range contextRows {
		k := pairKey(r.Mention, r.Context)
		if _, ok := ctxByPair[k]; !ok {
			ctxByPair[k] = r
		}
	}

	canonicalByMention := make(map[string]CanonicalRow, len(canonicalRows))
	for _, r := range canonicalRows {
		if _, ok := canonicalByMention[r.Mention]; !ok {
			canonicalByMention[r.Mention] = r
		}
	}

	uriByName := make(map[string]URIRow, len(uriRows))
	for _, r := range uriRows {
		if _, ok := uriByName[r.CanonicalName]; !ok {
			uriByName[r.CanonicalName] = r
		}
	}

	rows := make([]Row, 0, len(pairs))
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		k := pairKey(p.Mention, p.Context)
		if seen[k] {
			continue
		}
		seen[k] = true

		row := Row{
			Mention:  p.Mention,
			Context:  p.Context,
			Keywords: []string{},
		}

		if cr, ok := ctxByPair[k]; ok {
			row.EntityType = cr.EntityType
			row.Confidence = cr.Confidence
			row.Description = cr.Description
			if cr.Keywords != nil {
				row.Keywords = cr.Keywords
			}
		}

		if nr, ok := canonicalByMention[p.Mention]; ok {
			row.CanonicalName = nr.CanonicalName
		}

		if row.CanonicalName != "" {
			if ur, ok := uriByName[row.CanonicalName]; ok {
				row.URI = ur.URI
			}
		}

		rows = append(rows, row)
	}

	return rows
}

// Errors returns the rows with a missing canonical name or URI. They are
// flagged, not removed: the main result keeps them.
func Errors(rows []Row) []Row {
	var errored []Row
	for _, r := range rows {
		if r.CanonicalName == "" || r.URI == "" {
			errored = append(errored, r)
		}
	}
	return errored
}
