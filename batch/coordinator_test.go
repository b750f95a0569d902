package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/c360studio/semlink/linking"
	"github.com/c360studio/semlink/llm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// canonicalReply builds a JSON reply covering the given mentions.
func canonicalReply(mentions ...string) string {
	rows := make([]CanonicalRow, 0, len(mentions))
	for _, m := range mentions {
		rows = append(rows, CanonicalRow{Mention: m, CanonicalName: m + " Inc."})
	}
	data, _ := json.Marshal(rows)
	return string(data)
}

func newTestCoordinator(t *testing.T, gen *testutil.MockGenerator, uris URILookuper, cfg Config) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(gen, uris, cfg)
	require.NoError(t, err)
	return coord
}

func TestCoordinator_CanonicalNames_Chunking(t *testing.T) {
	// 5 mentions, chunk size 2 = 3 chunks = 3 generation calls.
	gen := &testutil.MockGenerator{Replies: []string{
		canonicalReply("a", "b"),
		canonicalReply("c", "d"),
		canonicalReply("e"),
	}}
	coord := newTestCoordinator(t, gen, nil, Config{CanonicalChunkSize: 2, ContextChunkSize: 10, URIChunkSize: 5})

	rows := coord.CanonicalNames(context.Background(), []string{"a", "b", "c", "d", "e"})

	require.Len(t, rows, 5)
	assert.Equal(t, 3, gen.CallCount())
	assert.Equal(t, "a Inc.", rows[0].CanonicalName)
	assert.Equal(t, "e Inc.", rows[4].CanonicalName)
}

func TestCoordinator_CanonicalNames_FailedChunkIsolated(t *testing.T) {
	// Middle chunk reply is garbage; its mentions degrade to
	// placeholders while surrounding chunks are unaffected.
	gen := &testutil.MockGenerator{Replies: []string{
		canonicalReply("a", "b"),
		"the model refused to answer",
		canonicalReply("e"),
	}}
	coord := newTestCoordinator(t, gen, nil, Config{CanonicalChunkSize: 2, ContextChunkSize: 10, URIChunkSize: 5})

	rows := coord.CanonicalNames(context.Background(), []string{"a", "b", "c", "d", "e"})

	require.Len(t, rows, 5)
	assert.Equal(t, "a Inc.", rows[0].CanonicalName)
	assert.Equal(t, "b Inc.", rows[1].CanonicalName)
	assert.Equal(t, "", rows[2].CanonicalName)
	assert.Equal(t, "", rows[3].CanonicalName)
	assert.Equal(t, "e Inc.", rows[4].CanonicalName)
}

func TestCoordinator_CanonicalNames_CoverageGaps(t *testing.T) {
	// Reply omits "b"; it still appears, as a placeholder.
	gen := &testutil.MockGenerator{Replies: []string{canonicalReply("a", "c")}}
	coord := newTestCoordinator(t, gen, nil, DefaultConfig())

	rows := coord.CanonicalNames(context.Background(), []string{"a", "b", "c"})

	require.Len(t, rows, 3)
	assert.Equal(t, "a Inc.", rows[0].CanonicalName)
	assert.Equal(t, "b", rows[1].Mention)
	assert.Equal(t, "", rows[1].CanonicalName)
	assert.Equal(t, "c Inc.", rows[2].CanonicalName)
}

func TestCoordinator_CanonicalNames_HallucinatedKeysDiscarded(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{canonicalReply("a", "made-up")}}
	coord := newTestCoordinator(t, gen, nil, DefaultConfig())

	rows := coord.CanonicalNames(context.Background(), []string{"a"})

	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].Mention)
}

func TestCoordinator_CanonicalNames_DuplicatesKeepFirst(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{canonicalReply("a", "b")}}
	coord := newTestCoordinator(t, gen, nil, DefaultConfig())

	rows := coord.CanonicalNames(context.Background(), []string{"a", "b", "a", "a"})

	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Mention)
	assert.Equal(t, "b", rows[1].Mention)
}

func TestCoordinator_ContextAnalysis_Placeholders(t *testing.T) {
	gen := &testutil.MockGenerator{Err: errors.New("endpoint down")}
	coord := newTestCoordinator(t, gen, nil, DefaultConfig())

	pairs := []linking.Mention{
		{Mention: "AAPL", Context: "tech"},
		{Mention: "MSFT", Context: "tech"},
	}
	rows := coord.ContextAnalysis(context.Background(), pairs)

	require.Len(t, rows, 2)
	for i, r := range rows {
		assert.Equal(t, pairs[i].Mention, r.Mention)
		assert.Equal(t, pairs[i].Context, r.Context)
		assert.Nil(t, r.Confidence, "placeholder confidence must be nil")
		assert.NotNil(t, r.Keywords)
	}
}

func TestCoordinator_ContextAnalysis_ParsesReply(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		`[{"mention": "AAPL", "context": "tech stock", "entity_type": "company", "confidence": 0.9, "keywords": ["technology"], "description": "Apple"}]`,
	}}
	coord := newTestCoordinator(t, gen, nil, DefaultConfig())

	rows := coord.ContextAnalysis(context.Background(), []linking.Mention{
		{Mention: "AAPL", Context: "tech stock"},
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "company", rows[0].EntityType)
	require.NotNil(t, rows[0].Confidence)
	assert.Equal(t, 0.9, *rows[0].Confidence)
	assert.Equal(t, []string{"technology"}, rows[0].Keywords)
}

func TestCoordinator_ContextAnalysis_SameMentionDifferentContexts(t *testing.T) {
	// Identity is the pair: same mention in two contexts yields two rows.
	gen := &testutil.MockGenerator{Replies: []string{
		`[{"mention": "Apple", "context": "fruit salad", "entity_type": "concept", "confidence": 0.8, "keywords": []},
		  {"mention": "Apple", "context": "quarterly earnings", "entity_type": "company", "confidence": 0.9, "keywords": []}]`,
	}}
	coord := newTestCoordinator(t, gen, nil, DefaultConfig())

	rows := coord.ContextAnalysis(context.Background(), []linking.Mention{
		{Mention: "Apple", Context: "fruit salad"},
		{Mention: "Apple", Context: "quarterly earnings"},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "concept", rows[0].EntityType)
	assert.Equal(t, "company", rows[1].EntityType)
}

// stubLookuper is a canned URILookuper.
type stubLookuper struct {
	uris  map[string]string
	err   error
	calls int
}

func (s *stubLookuper) BatchLookupURIs(_ context.Context, names []string) (map[string]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string)
	for _, n := range names {
		if uri, ok := s.uris[n]; ok {
			out[n] = uri
		}
	}
	return out, nil
}

func TestCoordinator_URILookups(t *testing.T) {
	uris := &stubLookuper{uris: map[string]string{
		"Apple Inc.": "http://dbpedia.org/resource/Apple_Inc.",
	}}
	coord := newTestCoordinator(t, &testutil.MockGenerator{}, uris, DefaultConfig())

	rows := coord.URILookups(context.Background(), []string{"Apple Inc.", "Frobnicate Ltd."})

	require.Len(t, rows, 2)
	assert.Equal(t, "http://dbpedia.org/resource/Apple_Inc.", rows[0].URI)
	assert.Equal(t, "", rows[1].URI)
	assert.Equal(t, "Frobnicate Ltd.", rows[1].CanonicalName)
}

func TestCoordinator_URILookups_ChunkFailure(t *testing.T) {
	uris := &stubLookuper{err: fmt.Errorf("sparql endpoint unreachable")}
	coord := newTestCoordinator(t, &testutil.MockGenerator{}, uris, Config{CanonicalChunkSize: 20, ContextChunkSize: 10, URIChunkSize: 2})

	rows := coord.URILookups(context.Background(), []string{"a", "b", "c"})

	require.Len(t, rows, 3)
	assert.Equal(t, 2, uris.calls)
	for _, r := range rows {
		assert.Equal(t, "", r.URI)
	}
}

func TestNewCoordinator_ZeroConfigDefaults(t *testing.T) {
	coord, err := NewCoordinator(&testutil.MockGenerator{}, nil, Config{})

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), coord.config)
}

func TestNewCoordinator_InvalidConfig(t *testing.T) {
	_, err := NewCoordinator(&testutil.MockGenerator{}, nil, Config{CanonicalChunkSize: -1, ContextChunkSize: 10, URIChunkSize: 5})

	require.Error(t, err)
}
