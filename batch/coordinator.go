// Package batch implements chunked batch preprocessing of mention tables:
// canonical name normalization, context analysis, and knowledge-base URI
// lookup, reconciled into one row per (mention, context) input pair.
//
// The hard invariant throughout is coverage: every submitted item yields
// exactly one output item, even when an external call fails or its reply
// omits items. Failing chunks degrade to placeholder rows and never block
// unrelated chunks.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semlink/llm"
)

// Config holds the per-stage chunk sizes.
type Config struct {
	// CanonicalChunkSize is the max mentions per normalization request.
	CanonicalChunkSize int `yaml:"canonical_chunk_size"`

	// ContextChunkSize is the max pairs per context-analysis request.
	ContextChunkSize int `yaml:"context_chunk_size"`

	// URIChunkSize is the max names per URI lookup query.
	URIChunkSize int `yaml:"uri_chunk_size"`
}

// DefaultConfig returns the chunk sizes the pipeline was tuned with.
func DefaultConfig() Config {
	return Config{
		CanonicalChunkSize: 20,
		ContextChunkSize:   10,
		URIChunkSize:       5,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.CanonicalChunkSize <= 0 {
		return fmt.Errorf("CanonicalChunkSize must be positive, got %d", c.CanonicalChunkSize)
	}
	if c.ContextChunkSize <= 0 {
		return fmt.Errorf("ContextChunkSize must be positive, got %d", c.ContextChunkSize)
	}
	if c.URIChunkSize <= 0 {
		return fmt.Errorf("URIChunkSize must be positive, got %d", c.URIChunkSize)
	}
	return nil
}

// URILookuper resolves canonical names to knowledge-base URIs in one
// aggregated query. kb.DBpedia implements it.
type URILookuper interface {
	BatchLookupURIs(ctx context.Context, names []string) (map[string]string, error)
}

// Coordinator drives the three batch-capable stages over bounded chunks.
// Chunks are processed one at a time, in order; there is no shared state
// across chunks.
type Coordinator struct {
	gen    llm.Generator
	uris   URILookuper
	config Config
	logger *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a Coordinator. A zero Config uses defaults.
func NewCoordinator(gen llm.Generator, uris URILookuper, cfg Config, opts ...CoordinatorOption) (*Coordinator, error) {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		gen:    gen,
		uris:   uris,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// runChunked partitions items into consecutive chunks of at most
// chunkSize, applies process per chunk, and emits exactly one result per
// distinct input key, in first-occurrence input order:
//
//   - items whose key is missing from the parsed reply get placeholder(item)
//   - a failed chunk yields placeholders for all its items
//   - duplicate keys keep the first occurrence
//   - reply entries for keys not in the chunk are discarded
func runChunked[T, R any](
	items []T,
	chunkSize int,
	stage string,
	logger *slog.Logger,
	key func(T) string,
	placeholder func(T) R,
	process func(chunk []T) (map[string]R, error),
) []R {
	nChunks := (len(items) + chunkSize - 1) / chunkSize

	out := make([]R, 0, len(items))
	seen := make(map[string]bool, len(items))

	for i := 0; i < nChunks; i++ {
		end := (i + 1) * chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[i*chunkSize : end]

		logger.Info("Processing chunk",
			"stage", stage,
			"chunk", i+1,
			"chunks", nChunks,
			"items", len(chunk))

		parsed, err := process(chunk)
		if err != nil {
			logger.Warn("Chunk failed, substituting placeholders",
				"stage", stage,
				"chunk", i+1,
				"chunks", nChunks,
				"error", err)
			parsed = nil
		}

		for _, item := range chunk {
			k := key(item)
			if seen[k] {
				continue
			}
			seen[k] = true

			if r, ok := parsed[k]; ok {
				out = append(out, r)
				continue
			}
			if parsed != nil {
				logger.Debug("Coverage gap, substituting placeholder",
					"stage", stage,
					"key", k)
			}
			out = append(out, placeholder(item))
		}
	}

	return out
}
