package batch

import (
	"context"
	"testing"

	"github.com/c360studio/semlink/linking"
	"github.com/c360studio/semlink/llm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_Run(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		// canonical names stage
		`[{"mention": "AAPL", "canonical_name": "Apple Inc."}, {"mention": "gibberish", "canonical_name": ""}]`,
		// context analysis stage
		`[{"mention": "AAPL", "context": "tech stock", "entity_type": "company", "confidence": 0.9, "keywords": ["technology"], "description": "Apple"},
		  {"mention": "gibberish", "context": "noise", "entity_type": "other", "confidence": 0.2, "keywords": [], "description": "unclear"}]`,
	}}
	uris := &stubLookuper{uris: map[string]string{
		"Apple Inc.": "http://dbpedia.org/resource/Apple_Inc.",
	}}
	coord := newTestCoordinator(t, gen, uris, DefaultConfig())
	pipeline := NewPipeline(coord, nil)

	result := pipeline.Run(context.Background(), []linking.Mention{
		{Mention: "AAPL", Context: "tech stock"},
		{Mention: "gibberish", Context: "noise"},
	})

	require.NotNil(t, result)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Rows, 2)

	apple := result.Rows[0]
	assert.Equal(t, "Apple Inc.", apple.CanonicalName)
	assert.Equal(t, "company", apple.EntityType)
	assert.Equal(t, "http://dbpedia.org/resource/Apple_Inc.", apple.URI)

	miss := result.Rows[1]
	assert.Equal(t, "", miss.CanonicalName)
	assert.Equal(t, "", miss.URI)

	// The unresolved mention is flagged, not dropped.
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "gibberish", result.Errors[0].Mention)
}

func TestPipeline_Run_SkipsURILookupForUnresolvedNames(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		`[{"mention": "a", "canonical_name": ""}]`,
		`[]`,
	}}
	uris := &stubLookuper{}
	coord := newTestCoordinator(t, gen, uris, DefaultConfig())
	pipeline := NewPipeline(coord, nil)

	result := pipeline.Run(context.Background(), []linking.Mention{{Mention: "a", Context: "x"}})

	require.Len(t, result.Rows, 1)
	assert.Equal(t, 0, uris.calls)
}

func TestPipeline_Run_TotalServiceFailureKeepsCardinality(t *testing.T) {
	// Generator down, knowledge base down: every input pair still
	// produces exactly one output row.
	gen := &testutil.MockGenerator{Err: assert.AnError}
	uris := &stubLookuper{err: assert.AnError}
	coord := newTestCoordinator(t, gen, uris, DefaultConfig())
	pipeline := NewPipeline(coord, nil)

	pairs := []linking.Mention{
		{Mention: "a", Context: "1"},
		{Mention: "b", Context: "2"},
		{Mention: "c", Context: "3"},
	}
	result := pipeline.Run(context.Background(), pairs)

	require.Len(t, result.Rows, 3)
	assert.Len(t, result.Errors, 3)
	for i, r := range result.Rows {
		assert.Equal(t, pairs[i].Mention, r.Mention)
	}
}
