package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/c360studio/semlink/linking"
)

// DefaultWikidataEndpoint is the public Wikidata action API.
const DefaultWikidataEndpoint = "https://www.wikidata.org/w/api.php"

// Wikidata searches Wikidata via the wbsearchentities action API. The
// API doesn't expose type metadata in search results, so candidates carry
// only URI, label, and description.
type Wikidata struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// WikidataOption configures a Wikidata source.
type WikidataOption func(*Wikidata)

// WithWikidataHTTPClient sets a custom HTTP client.
func WithWikidataHTTPClient(c *http.Client) WikidataOption {
	return func(w *Wikidata) {
		w.httpClient = c
	}
}

// WithWikidataLogger sets the logger.
func WithWikidataLogger(logger *slog.Logger) WikidataOption {
	return func(w *Wikidata) {
		w.logger = logger
	}
}

// NewWikidata creates a Wikidata source. An empty endpoint uses the
// public one.
func NewWikidata(endpoint string, opts ...WikidataOption) *Wikidata {
	if endpoint == "" {
		endpoint = DefaultWikidataEndpoint
	}
	w := &Wikidata{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the knowledge base identifier.
func (w *Wikidata) Name() string {
	return "wikidata"
}

// wikidataSearchResponse is the wbsearchentities response shape.
type wikidataSearchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
		ConceptURI  string `json:"concepturi"`
	} `json:"search"`
}

// Search returns entities matching the label. Failures log and return nil.
func (w *Wikidata) Search(ctx context.Context, label string, _ *linking.ContextSignal, limit int) []linking.Candidate {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("search", label)
	params.Set("language", "en")
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))

	var resp wikidataSearchResponse
	if err := w.get(ctx, params, &resp); err != nil {
		w.logger.Warn("Wikidata search failed",
			"label", label,
			"error", err)
		return nil
	}

	var candidates []linking.Candidate
	for _, hit := range resp.Search {
		uri := hit.ConceptURI
		if uri == "" {
			uri = "http://www.wikidata.org/entity/" + hit.ID
		}
		candidates = append(candidates, linking.Candidate{
			URI:         uri,
			Label:       hit.Label,
			Description: hit.Description,
		})
	}
	return candidates
}

// wikidataEntitiesResponse is the wbgetentities response shape, reduced
// to the fields the detail lookup needs.
type wikidataEntitiesResponse struct {
	Entities map[string]struct {
		Labels map[string]struct {
			Value string `json:"value"`
		} `json:"labels"`
		Descriptions map[string]struct {
			Value string `json:"value"`
		} `json:"descriptions"`
	} `json:"entities"`
}

// EntityInfo returns the English label and description for an entity ID
// or concept URI.
func (w *Wikidata) EntityInfo(ctx context.Context, uri string) (*linking.EntityInfo, error) {
	id := uri
	if i := lastSlash(uri); i >= 0 {
		id = uri[i+1:]
	}

	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("ids", id)
	params.Set("props", "labels|descriptions")
	params.Set("languages", "en")
	params.Set("format", "json")

	var resp wikidataEntitiesResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("entity info for %s: %w", uri, err)
	}

	entity, ok := resp.Entities[id]
	if !ok {
		return nil, nil
	}

	return &linking.EntityInfo{
		URI:         uri,
		Label:       entity.Labels["en"].Value,
		Description: entity.Descriptions["en"].Value,
	}, nil
}

// get executes a GET against the action API and decodes the JSON reply.
func (w *Wikidata) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, sparqlMaxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d)", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
