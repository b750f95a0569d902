package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360studio/semlink/linking"
	"github.com/google/uuid"
)

// RunResult is the outcome of one full pipeline run.
type RunResult struct {
	// RunID correlates the run's log lines.
	RunID string

	// Rows is the complete reconciled table, one row per distinct
	// (mention, context) input pair.
	Rows []Row

	// Errors is the subset of Rows with a missing canonical name or
	// URI. Computed, not removed from Rows.
	Errors []Row

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// Pipeline composes the three batch stages and the reconciler. A fully
// failed external service degrades output quality (empty fields) but
// never reduces output cardinality relative to the input.
type Pipeline struct {
	coord  *Coordinator
	logger *slog.Logger
}

// NewPipeline creates a Pipeline over the given coordinator.
func NewPipeline(coord *Coordinator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{coord: coord, logger: logger}
}

// Run executes canonical name normalization, context analysis, and URI
// lookup over the input pairs, then reconciles the three tables.
func (p *Pipeline) Run(ctx context.Context, pairs []linking.Mention) *RunResult {
	runID := uuid.New().String()
	start := time.Now()

	p.logger.Info("Batch pipeline started",
		"run_id", runID,
		"pairs", len(pairs))

	mentions := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		mentions = append(mentions, pair.Mention)
	}

	canonicalRows := p.coord.CanonicalNames(ctx, mentions)
	contextRows := p.coord.ContextAnalysis(ctx, pairs)

	// Only resolved names get a URI lookup; placeholders stay misses.
	names := make([]string, 0, len(canonicalRows))
	for _, r := range canonicalRows {
		if r.CanonicalName != "" {
			names = append(names, r.CanonicalName)
		}
	}
	uriRows := p.coord.URILookups(ctx, names)

	rows := Reconcile(pairs, contextRows, canonicalRows, uriRows)
	errored := Errors(rows)

	duration := time.Since(start)
	p.logger.Info("Batch pipeline completed",
		"run_id", runID,
		"rows", len(rows),
		"errors", len(errored),
		"duration", duration)

	return &RunResult{
		RunID:    runID,
		Rows:     rows,
		Errors:   errored,
		Duration: duration,
	}
}
