package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/semlink/linking"
	"github.com/c360studio/semlink/llm"
)

// CanonicalRow maps a mention to its canonical knowledge-base name.
// An empty CanonicalName means normalization failed for that mention.
type CanonicalRow struct {
	Mention       string `json:"mention"`
	CanonicalName string `json:"canonical_name"`
}

// ContextRow is one context-analysis result, keyed by the (mention,
// context) pair. A nil Confidence marks a placeholder row.
type ContextRow struct {
	Mention     string   `json:"mention"`
	Context     string   `json:"context"`
	EntityType  string   `json:"entity_type"`
	Confidence  *float64 `json:"confidence"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
}

// URIRow maps a canonical name to its knowledge-base URI.
type URIRow struct {
	CanonicalName string `json:"canonical_name"`
	URI           string `json:"uri"`
}

// pairKey joins a (mention, context) pair into one map key.
func pairKey(mention, context string) string {
	return mention + "\x1f" + context
}

// CanonicalNames normalizes mentions in chunks, one aggregated generation
// request per chunk. Output covers every distinct mention in input order.
func (c *Coordinator) CanonicalNames(ctx context.Context, mentions []string) []CanonicalRow {
	return runChunked(mentions, c.config.CanonicalChunkSize, "canonical_names", c.logger,
		func(m string) string { return m },
		func(m string) CanonicalRow { return CanonicalRow{Mention: m} },
		func(chunk []string) (map[string]CanonicalRow, error) {
			var sb strings.Builder
			sb.WriteString("Given the following list of entity mentions, return the canonical knowledge-base name for each. ")
			sb.WriteString("Respond as a JSON list of objects with fields 'mention' and 'canonical_name'.\n\nEntities:\n")
			for _, m := range chunk {
				fmt.Fprintf(&sb, "- %s\n", m)
			}

			reply, err := c.gen.Generate(ctx, sb.String())
			if err != nil {
				return nil, err
			}

			rows, err := decodeList[CanonicalRow](reply)
			if err != nil {
				return nil, err
			}

			byMention := make(map[string]CanonicalRow, len(rows))
			for _, r := range rows {
				if _, ok := byMention[r.Mention]; !ok {
					byMention[r.Mention] = r
				}
			}
			return byMention, nil
		})
}

// ContextAnalysis classifies (mention, context) pairs in chunks, one
// aggregated generation request per chunk.
func (c *Coordinator) ContextAnalysis(ctx context.Context, pairs []linking.Mention) []ContextRow {
	return runChunked(pairs, c.config.ContextChunkSize, "context_analysis", c.logger,
		func(p linking.Mention) string { return pairKey(p.Mention, p.Context) },
		func(p linking.Mention) ContextRow {
			return ContextRow{Mention: p.Mention, Context: p.Context, Keywords: []string{}}
		},
		func(chunk []linking.Mention) (map[string]ContextRow, error) {
			var sb strings.Builder
			sb.WriteString("Given the following list of entity mentions and their contexts, ")
			sb.WriteString("analyze each pair and return a JSON list of objects with fields: ")
			sb.WriteString("'mention', 'context', 'entity_type' (person, company, place, product, concept, or other), ")
			sb.WriteString("'confidence' (0-1), 'keywords' (list), and 'description' (brief description).\n\nPairs:\n")
			for _, p := range chunk {
				fmt.Fprintf(&sb, "- mention: %s\n  context: %s\n", p.Mention, p.Context)
			}

			reply, err := c.gen.Generate(ctx, sb.String())
			if err != nil {
				return nil, err
			}

			rows, err := decodeList[ContextRow](reply)
			if err != nil {
				return nil, err
			}

			byPair := make(map[string]ContextRow, len(rows))
			for _, r := range rows {
				if r.Keywords == nil {
					r.Keywords = []string{}
				}
				k := pairKey(r.Mention, r.Context)
				if _, ok := byPair[k]; !ok {
					byPair[k] = r
				}
			}
			return byPair, nil
		})
}

// URILookups resolves canonical names to URIs in chunks, one aggregated
// knowledge-base query per chunk.
func (c *Coordinator) URILookups(ctx context.Context, names []string) []URIRow {
	return runChunked(names, c.config.URIChunkSize, "uri_lookup", c.logger,
		func(n string) string { return n },
		func(n string) URIRow { return URIRow{CanonicalName: n} },
		func(chunk []string) (map[string]URIRow, error) {
			uriMap, err := c.uris.BatchLookupURIs(ctx, chunk)
			if err != nil {
				return nil, err
			}

			byName := make(map[string]URIRow, len(uriMap))
			for name, uri := range uriMap {
				byName[name] = URIRow{CanonicalName: name, URI: uri}
			}
			return byName, nil
		})
}

// decodeList parses a model reply into a row list: strict decode of the
// whole reply first, then the first JSON array span within it.
func decodeList[R any](reply string) ([]R, error) {
	trimmed := strings.TrimSpace(reply)

	var rows []R
	if err := json.Unmarshal([]byte(trimmed), &rows); err == nil {
		return rows, nil
	}

	span := llm.ExtractJSONArray(trimmed)
	if span == "" {
		return nil, fmt.Errorf("no JSON array in reply")
	}
	if err := json.Unmarshal([]byte(span), &rows); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	return rows, nil
}
