package linking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semlink/llm"
)

// Fallback descriptions for the default signal. The first marks a reply
// with no recognizable JSON object, the second a reply (or transport)
// failure partway through analysis.
const (
	descUnknownType   = "Unknown entity type"
	descAnalysisError = "Error in analysis"
)

// Classifier derives a ContextSignal from a (mention, context) pair.
// Classification is an enhancement, never a hard dependency of linking:
// every failure mode degrades to the default signal instead of erroring.
type Classifier struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewClassifier creates a Classifier backed by the given generator.
func NewClassifier(gen llm.Generator, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gen: gen, logger: logger}
}

// Classify analyzes a mention in context. The reply is parsed in three
// tiers: strict decode of the whole reply, decode of the first balanced
// JSON object span, then the documented default signal.
func (c *Classifier) Classify(ctx context.Context, mention, contextText string) *ContextSignal {
	prompt := fmt.Sprintf(`Analyze the following entity mention and context to determine the most likely entity type and characteristics.
Return your analysis as a JSON object with the following fields:
- entity_type: "person", "company", "place", "product", "concept", or "other"
- confidence: confidence score (0-1)
- keywords: list of relevant keywords that might help in disambiguation
- description: brief description of what this entity likely refers to

Entity: %s
Context: %s

Return only the JSON object, no additional text.
`, mention, contextText)

	reply, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("Context classification failed, using default signal",
			"mention", mention,
			"error", err)
		return DefaultSignal(descAnalysisError)
	}

	return c.parseSignal(strings.TrimSpace(reply), mention)
}

// parseSignal runs the three-tier parse over a raw reply.
func (c *Classifier) parseSignal(reply, mention string) *ContextSignal {
	var signal ContextSignal
	if err := json.Unmarshal([]byte(reply), &signal); err == nil {
		return sanitizeSignal(&signal)
	}

	span := llm.ExtractJSON(reply)
	if span == "" {
		c.logger.Debug("No JSON object in classification reply",
			"mention", mention)
		return DefaultSignal(descUnknownType)
	}

	if err := json.Unmarshal([]byte(span), &signal); err != nil {
		c.logger.Warn("Malformed JSON in classification reply, using default signal",
			"mention", mention,
			"error", err)
		return DefaultSignal(descAnalysisError)
	}

	return sanitizeSignal(&signal)
}

// sanitizeSignal fills defaults for fields the model left empty.
func sanitizeSignal(signal *ContextSignal) *ContextSignal {
	if signal.EntityType == "" {
		signal.EntityType = TypeOther
	}
	if signal.Keywords == nil {
		signal.Keywords = []string{}
	}
	return signal
}
