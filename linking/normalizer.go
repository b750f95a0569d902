package linking

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/semlink/llm"
)

// Normalizer turns a mention into the canonical name used as the lookup
// key against knowledge bases.
type Normalizer struct {
	gen llm.Generator
}

// NewNormalizer creates a Normalizer backed by the given generator.
func NewNormalizer(gen llm.Generator) *Normalizer {
	return &Normalizer{gen: gen}
}

// Normalize returns the canonical name for a mention. The raw reply is
// trimmed and returned verbatim; transport errors propagate to the caller.
func (n *Normalizer) Normalize(ctx context.Context, mention, contextText string) (string, error) {
	if mention == "" {
		return "", fmt.Errorf("mention is required")
	}

	prompt := fmt.Sprintf(`Given the following entity mention, return the canonical name as used in knowledge bases (just the name, no explanation):
Entity: %s
`, mention)
	if contextText != "" {
		prompt += fmt.Sprintf("\nContext: %s", contextText)
	}

	reply, err := n.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", mention, err)
	}

	return strings.TrimSpace(reply), nil
}
