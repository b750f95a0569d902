// Package kb provides knowledge-base candidate sources. Sources are
// leaves: they retrieve raw candidates and never score or rank beyond
// source-side de-duplication. Query failures yield empty result sets so
// the engine's partial-failure isolation holds at the source boundary.
package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360studio/semlink/linking"
)

// DefaultDBpediaEndpoint is the public DBpedia SPARQL endpoint.
const DefaultDBpediaEndpoint = "https://dbpedia.org/sparql"

// sparqlMaxResponseSize caps a SPARQL results body.
const sparqlMaxResponseSize = 10 * 1024 * 1024 // 10MB

// DBpedia searches DBpedia over its SPARQL endpoint.
type DBpedia struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// DBpediaOption configures a DBpedia source.
type DBpediaOption func(*DBpedia)

// WithDBpediaHTTPClient sets a custom HTTP client.
func WithDBpediaHTTPClient(c *http.Client) DBpediaOption {
	return func(d *DBpedia) {
		d.httpClient = c
	}
}

// WithDBpediaLogger sets the logger.
func WithDBpediaLogger(logger *slog.Logger) DBpediaOption {
	return func(d *DBpedia) {
		d.logger = logger
	}
}

// NewDBpedia creates a DBpedia source. An empty endpoint uses the public
// one.
func NewDBpedia(endpoint string, opts ...DBpediaOption) *DBpedia {
	if endpoint == "" {
		endpoint = DefaultDBpediaEndpoint
	}
	d := &DBpedia{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the knowledge base identifier.
func (d *DBpedia) Name() string {
	return "dbpedia"
}

// Search returns entities whose English label matches exactly. With a
// context signal the query also fetches type and abstract metadata so the
// scorer has something to work with. Failures log and return nil.
func (d *DBpedia) Search(ctx context.Context, label string, signal *linking.ContextSignal, limit int) []linking.Candidate {
	if limit <= 0 {
		limit = 10
	}

	var query string
	if signal != nil {
		query = fmt.Sprintf(`
SELECT DISTINCT ?uri ?label ?type ?abstract WHERE {
  ?uri rdfs:label ?label .
  FILTER (?label = %s@en)
  OPTIONAL {
    ?uri rdf:type ?type .
  }
  OPTIONAL {
    ?uri dbo:abstract ?abstract .
    FILTER (lang(?abstract) = 'en')
  }
} LIMIT %d`, sparqlLiteral(label), limit)
	} else {
		query = fmt.Sprintf(`
SELECT ?uri ?label WHERE {
  ?uri rdfs:label ?label .
  FILTER (?label = %s@en)
} LIMIT %d`, sparqlLiteral(label), limit)
	}

	bindings, err := d.query(ctx, query)
	if err != nil {
		d.logger.Warn("DBpedia search failed",
			"label", label,
			"error", err)
		return nil
	}

	var candidates []linking.Candidate
	seen := make(map[string]bool)
	for _, b := range bindings {
		uri := b["uri"].Value
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true

		candidates = append(candidates, linking.Candidate{
			URI:         uri,
			Label:       b["label"].Value,
			EntityType:  b["type"].Value,
			Description: b["abstract"].Value,
		})
	}
	return candidates
}

// EntityInfo returns the label, English abstract, and types for a URI.
func (d *DBpedia) EntityInfo(ctx context.Context, uri string) (*linking.EntityInfo, error) {
	query := fmt.Sprintf(`
SELECT ?label ?abstract ?type WHERE {
  <%s> rdfs:label ?label .
  FILTER (lang(?label) = 'en')
  OPTIONAL {
    <%s> dbo:abstract ?abstract .
    FILTER (lang(?abstract) = 'en')
  }
  OPTIONAL {
    <%s> rdf:type ?type .
  }
}`, uri, uri, uri)

	bindings, err := d.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("entity info for %s: %w", uri, err)
	}
	if len(bindings) == 0 {
		return nil, nil
	}

	info := &linking.EntityInfo{
		URI:         uri,
		Label:       bindings[0]["label"].Value,
		Description: bindings[0]["abstract"].Value,
	}
	seen := make(map[string]bool)
	for _, b := range bindings {
		t := b["type"].Value
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		info.Types = append(info.Types, t)
	}
	return info, nil
}

// BatchLookupURIs resolves canonical names to URIs with one VALUES query.
// The returned map only holds names the endpoint matched; missing names
// are the caller's placeholder problem.
func (d *DBpedia) BatchLookupURIs(ctx context.Context, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, sparqlLiteral(name)+"@en")
	}

	query := fmt.Sprintf(`
SELECT ?canonical_name ?uri WHERE {
  VALUES ?canonical_name { %s }
  ?uri rdfs:label ?canonical_name .
  FILTER (lang(?canonical_name) = 'en')
}`, strings.Join(values, " "))

	bindings, err := d.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("batch URI lookup: %w", err)
	}

	uriMap := make(map[string]string, len(bindings))
	for _, b := range bindings {
		name := b["canonical_name"].Value
		if name == "" {
			continue
		}
		// Keep the first URI per name
		if _, ok := uriMap[name]; !ok {
			uriMap[name] = b["uri"].Value
		}
	}
	return uriMap, nil
}

// sparqlBinding is one variable binding in a SPARQL JSON results row.
type sparqlBinding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// sparqlResults is the SPARQL JSON results envelope.
type sparqlResults struct {
	Results struct {
		Bindings []map[string]sparqlBinding `json:"bindings"`
	} `json:"results"`
}

// query executes a SPARQL query and returns the result bindings.
func (d *DBpedia) query(ctx context.Context, query string) ([]map[string]sparqlBinding, error) {
	form := url.Values{}
	form.Set("query", query)
	form.Set("format", "application/sparql-results+json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, sparqlMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return nil, fmt.Errorf("SPARQL endpoint error (status %d): %s", resp.StatusCode, preview)
	}

	var results sparqlResults
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return results.Results.Bindings, nil
}

// sparqlLiteral quotes a string as a SPARQL literal.
func sparqlLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}
