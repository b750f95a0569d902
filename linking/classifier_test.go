package linking

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semlink/llm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Classify_StrictJSON(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		`{"entity_type": "company", "confidence": 0.9, "keywords": ["technology"], "description": "A tech company"}`,
	}}

	signal := NewClassifier(gen, nil).Classify(context.Background(), "Apple", "Apple released a new phone")

	require.NotNil(t, signal)
	assert.Equal(t, TypeCompany, signal.EntityType)
	assert.Equal(t, 0.9, signal.Confidence)
	assert.Equal(t, []string{"technology"}, signal.Keywords)
}

func TestClassifier_Classify_JSONInProse(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		"Here is my analysis:\n```json\n{\"entity_type\": \"person\", \"confidence\": 0.8, \"keywords\": []}\n```\nHope that helps!",
	}}

	signal := NewClassifier(gen, nil).Classify(context.Background(), "Jordan", "Jordan scored 40 points")

	require.NotNil(t, signal)
	assert.Equal(t, TypePerson, signal.EntityType)
	assert.Equal(t, 0.8, signal.Confidence)
}

func TestClassifier_Classify_NoJSONAtAll(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		"not json at all, just a rambling refusal",
	}}

	signal := NewClassifier(gen, nil).Classify(context.Background(), "X", "some context")

	require.NotNil(t, signal)
	assert.Equal(t, TypeOther, signal.EntityType)
	assert.Equal(t, 0.5, signal.Confidence)
	assert.Empty(t, signal.Keywords)
	assert.Equal(t, "Unknown entity type", signal.Description)
}

func TestClassifier_Classify_MalformedJSONSpan(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		`prose around {"entity_type": "company", "confidence": "not a number"} more prose`,
	}}

	signal := NewClassifier(gen, nil).Classify(context.Background(), "X", "some context")

	require.NotNil(t, signal)
	assert.Equal(t, TypeOther, signal.EntityType)
	assert.Equal(t, "Error in analysis", signal.Description)
}

func TestClassifier_Classify_GeneratorError(t *testing.T) {
	gen := &testutil.MockGenerator{Err: errors.New("connection refused")}

	signal := NewClassifier(gen, nil).Classify(context.Background(), "X", "some context")

	require.NotNil(t, signal)
	assert.Equal(t, TypeOther, signal.EntityType)
	assert.Equal(t, 0.5, signal.Confidence)
	assert.Equal(t, "Error in analysis", signal.Description)
}

func TestClassifier_Classify_FillsMissingFields(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{
		`{"confidence": 0.7}`,
	}}

	signal := NewClassifier(gen, nil).Classify(context.Background(), "X", "ctx")

	require.NotNil(t, signal)
	assert.Equal(t, TypeOther, signal.EntityType)
	assert.NotNil(t, signal.Keywords)
}

func TestClassifier_PromptMentionsEntityAndContext(t *testing.T) {
	gen := &testutil.MockGenerator{Replies: []string{`{"entity_type": "place"}`}}

	NewClassifier(gen, nil).Classify(context.Background(), "Springfield", "the state capital")

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Springfield")
	assert.Contains(t, prompts[0], "the state capital")
}
