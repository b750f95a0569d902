package linking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360studio/semlink/llm"
)

// defaultLimit is the candidate limit when the caller doesn't set one.
const defaultLimit = 5

// Engine resolves a single mention through the full linking state machine:
// normalize, classify, search, score and rank, aggregate confidence.
//
// The generator and source registries are populated at construction and
// must not be mutated during a linking operation; they are safe to share
// across calls without locking under that discipline.
type Engine struct {
	generators map[string]llm.Generator
	sources    map[string]CandidateSource
	scorer     Scorer
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an empty engine. Register generators and sources
// before the first Link call.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		generators: make(map[string]llm.Generator),
		sources:    make(map[string]CandidateSource),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterGenerator adds a text generator under its own name.
func (e *Engine) RegisterGenerator(gen llm.Generator) {
	e.generators[gen.Name()] = gen
}

// RegisterSource adds a knowledge base under its own name.
func (e *Engine) RegisterSource(src CandidateSource) {
	e.sources[src.Name()] = src
}

// Generators lists registered generator names, sorted.
func (e *Engine) Generators() []string {
	return sortedKeys(e.generators)
}

// Sources lists registered knowledge base names, sorted.
func (e *Engine) Sources() []string {
	return sortedKeys(e.sources)
}

// LinkOptions control a single Link call.
type LinkOptions struct {
	// Generator names the text generator to use. Empty selects the
	// first registered (by name order).
	Generator string

	// KnowledgeBases names the sources to search. Empty searches all.
	KnowledgeBases []string

	// Limit caps the ranked candidate list. Zero means defaultLimit.
	Limit int
}

// Link resolves one mention. Stages run strictly in order; a transport
// error during normalization is fatal and propagates, while individual
// knowledge-base failures only empty that source's contribution.
func (e *Engine) Link(ctx context.Context, mention, contextText string, opts LinkOptions) (*Result, error) {
	gen, err := e.selectGenerator(opts.Generator)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	// NORMALIZE
	canonical, err := NewNormalizer(gen).Normalize(ctx, mention, contextText)
	if err != nil {
		return nil, err
	}

	// CLASSIFY
	var signal *ContextSignal
	if contextText != "" {
		signal = NewClassifier(gen, e.logger).Classify(ctx, mention, contextText)
	}

	// SEARCH
	kbNames := opts.KnowledgeBases
	if len(kbNames) == 0 {
		kbNames = e.Sources()
	}

	var candidates []Candidate
	for _, name := range kbNames {
		src, ok := e.sources[name]
		if !ok {
			e.logger.Warn("Unknown knowledge base, skipping", "name", name)
			continue
		}
		found := src.Search(ctx, canonical, signal, limit)
		e.logger.Debug("Knowledge base searched",
			"name", name,
			"label", canonical,
			"candidates", len(found))
		candidates = append(candidates, found...)
	}

	// SCORE & RANK
	ranked := e.scorer.Rank(candidates, signal, limit)

	// AGGREGATE CONFIDENCE
	confidence := overallConfidence(ranked, signal)

	return &Result{
		Mention:       mention,
		Context:       contextText,
		CanonicalName: canonical,
		Signal:        signal,
		Candidates:    ranked,
		Confidence:    confidence,
		Provenance: Provenance{
			Generator:      gen.Name(),
			KnowledgeBases: kbNames,
		},
	}, nil
}

// BatchLink applies the single-mention state machine independently to
// each entry, in input order, with no cross-mention state.
func (e *Engine) BatchLink(ctx context.Context, mentions []Mention, opts LinkOptions) ([]*Result, error) {
	results := make([]*Result, 0, len(mentions))
	for i, m := range mentions {
		result, err := e.Link(ctx, m.Mention, m.Context, opts)
		if err != nil {
			return nil, fmt.Errorf("link entry %d (%q): %w", i, m.Mention, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// selectGenerator resolves a generator by name, or picks the first
// registered when no name is given.
func (e *Engine) selectGenerator(name string) (llm.Generator, error) {
	if name != "" {
		gen, ok := e.generators[name]
		if !ok {
			return nil, fmt.Errorf("unknown generator: %s", name)
		}
		return gen, nil
	}

	names := e.Generators()
	if len(names) == 0 {
		return nil, fmt.Errorf("no generators registered")
	}
	return e.generators[names[0]], nil
}

// overallConfidence averages the top candidate scores, blended with the
// context confidence by simple mean when a signal exists. Zero ranked
// candidates mean zero confidence.
func overallConfidence(ranked []ScoredCandidate, signal *ContextSignal) float64 {
	if len(ranked) == 0 {
		return 0.0
	}

	var sum float64
	for _, c := range ranked {
		sum += c.Score
	}
	avg := sum / float64(len(ranked))

	if signal != nil {
		return (avg + signal.Confidence) / 2
	}
	return avg
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
