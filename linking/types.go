// Package linking implements context-aware resolution of free-text entity
// mentions to canonical knowledge-base identifiers. The engine composes
// name normalization, context classification, candidate search, scoring,
// and confidence aggregation for a single mention; the batch package builds
// the chunked pipeline on top of it.
package linking

import "context"

// Entity type labels produced by context classification.
const (
	TypePerson  = "person"
	TypeCompany = "company"
	TypePlace   = "place"
	TypeProduct = "product"
	TypeConcept = "concept"
	TypeOther   = "other"
)

// Mention is a raw text span believed to name an entity, with optional
// surrounding context. Identity is the (Mention, Context) pair.
type Mention struct {
	Mention string `json:"mention"`
	Context string `json:"context,omitempty"`
}

// ContextSignal is the structured classification of a mention's likely
// entity type and disambiguation hints, derived from surrounding text.
type ContextSignal struct {
	EntityType  string   `json:"entity_type"`
	Confidence  float64  `json:"confidence"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
}

// DefaultSignal returns the fallback signal substituted when context
// classification fails irrecoverably. Downstream scoring always has a
// signal to consume.
func DefaultSignal(description string) *ContextSignal {
	return &ContextSignal{
		EntityType:  TypeOther,
		Confidence:  0.5,
		Keywords:    []string{},
		Description: description,
	}
}

// Candidate is a knowledge-base entry proposed as a possible referent.
// EntityType and Description carry raw source metadata and may be empty.
type Candidate struct {
	URI         string `json:"uri"`
	Label       string `json:"label"`
	EntityType  string `json:"entity_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ScoredCandidate is a candidate with its computed relevance score.
type ScoredCandidate struct {
	Candidate
	Score float64 `json:"score"`
}

// EntityInfo is the detail record a knowledge base may expose for a URI.
type EntityInfo struct {
	URI         string   `json:"uri"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Types       []string `json:"types,omitempty"`
}

// CandidateSource retrieves raw candidates from one knowledge base.
// Search must return an empty slice, not an error, on query failure so
// one bad knowledge base never aborts the others.
type CandidateSource interface {
	// Name returns the knowledge base identifier (e.g., "dbpedia").
	Name() string

	// Search returns candidates whose label matches. signal may be nil.
	Search(ctx context.Context, label string, signal *ContextSignal, limit int) []Candidate

	// EntityInfo returns the detail record for a URI, or nil if unknown.
	EntityInfo(ctx context.Context, uri string) (*EntityInfo, error)
}

// Provenance records which collaborators produced a Result.
type Provenance struct {
	Generator      string   `json:"generator"`
	KnowledgeBases []string `json:"knowledge_bases"`
}

// Result is the outcome of linking a single mention. Immutable after
// construction.
type Result struct {
	Mention       string            `json:"mention"`
	Context       string            `json:"context,omitempty"`
	CanonicalName string            `json:"canonical_name"`
	Signal        *ContextSignal    `json:"context_signal,omitempty"`
	Candidates    []ScoredCandidate `json:"candidates"`
	Confidence    float64           `json:"confidence"`
	Provenance    Provenance        `json:"provenance"`
}
