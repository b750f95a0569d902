package kb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/c360studio/semlink/linking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sparqlFixture builds a SPARQL JSON results body from variable rows.
func sparqlFixture(rows []map[string]string) string {
	var bindings []string
	for _, row := range rows {
		var vars []string
		for name, value := range row {
			vars = append(vars, fmt.Sprintf(`%q: {"type": "uri", "value": %q}`, name, value))
		}
		bindings = append(bindings, "{"+strings.Join(vars, ",")+"}")
	}
	return fmt.Sprintf(`{"results": {"bindings": [%s]}}`, strings.Join(bindings, ","))
}

func newSPARQLServer(t *testing.T, fixture string, gotQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		require.NoError(t, r.ParseForm())
		if gotQuery != nil {
			*gotQuery = r.FormValue("query")
		}
		assert.Equal(t, "application/sparql-results+json", r.FormValue("format"))

		w.Header().Set("Content-Type", "application/sparql-results+json")
		fmt.Fprint(w, fixture)
	}))
}

func TestDBpedia_Search(t *testing.T) {
	fixture := sparqlFixture([]map[string]string{
		{
			"uri":      "http://dbpedia.org/resource/Apple_Inc.",
			"label":    "Apple Inc.",
			"type":     "http://dbpedia.org/ontology/Company",
			"abstract": "American technology company.",
		},
		{
			"uri":   "http://dbpedia.org/resource/Apple",
			"label": "Apple",
		},
		// Duplicate URI from a second rdf:type binding
		{
			"uri":      "http://dbpedia.org/resource/Apple_Inc.",
			"label":    "Apple Inc.",
			"type":     "http://www.w3.org/2002/07/owl#Thing",
			"abstract": "American technology company.",
		},
	})

	var gotQuery string
	server := newSPARQLServer(t, fixture, &gotQuery)
	defer server.Close()

	d := NewDBpedia(server.URL)
	signal := &linking.ContextSignal{EntityType: linking.TypeCompany}

	candidates := d.Search(context.Background(), "Apple Inc.", signal, 5)

	require.Len(t, candidates, 2)
	assert.Equal(t, "http://dbpedia.org/resource/Apple_Inc.", candidates[0].URI)
	assert.Equal(t, "http://dbpedia.org/ontology/Company", candidates[0].EntityType)
	assert.Equal(t, "American technology company.", candidates[0].Description)

	// Signal queries fetch metadata for the scorer.
	assert.Contains(t, gotQuery, "rdf:type")
	assert.Contains(t, gotQuery, "dbo:abstract")
	assert.Contains(t, gotQuery, `"Apple Inc."@en`)
}

func TestDBpedia_Search_NoSignalSimpleQuery(t *testing.T) {
	var gotQuery string
	server := newSPARQLServer(t, sparqlFixture(nil), &gotQuery)
	defer server.Close()

	d := NewDBpedia(server.URL)
	d.Search(context.Background(), "Apple", nil, 5)

	assert.NotContains(t, gotQuery, "dbo:abstract")
	assert.Contains(t, gotQuery, "rdfs:label")
}

func TestDBpedia_Search_EndpointFailureReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := NewDBpedia(server.URL)

	assert.Nil(t, d.Search(context.Background(), "Apple", nil, 5))
}

func TestDBpedia_BatchLookupURIs(t *testing.T) {
	fixture := sparqlFixture([]map[string]string{
		{"canonical_name": "Apple Inc.", "uri": "http://dbpedia.org/resource/Apple_Inc."},
		// Second URI for the same name is ignored
		{"canonical_name": "Apple Inc.", "uri": "http://dbpedia.org/resource/Apple_Inc_duplicate"},
		{"canonical_name": "Microsoft", "uri": "http://dbpedia.org/resource/Microsoft"},
	})

	var gotQuery string
	server := newSPARQLServer(t, fixture, &gotQuery)
	defer server.Close()

	d := NewDBpedia(server.URL)

	uris, err := d.BatchLookupURIs(context.Background(), []string{"Apple Inc.", "Microsoft", "Frobnicate"})

	require.NoError(t, err)
	assert.Len(t, uris, 2)
	assert.Equal(t, "http://dbpedia.org/resource/Apple_Inc.", uris["Apple Inc."])
	assert.Equal(t, "http://dbpedia.org/resource/Microsoft", uris["Microsoft"])
	_, ok := uris["Frobnicate"]
	assert.False(t, ok)

	assert.Contains(t, gotQuery, "VALUES")
	assert.Contains(t, gotQuery, `"Frobnicate"@en`)
}

func TestDBpedia_BatchLookupURIs_EmptyInput(t *testing.T) {
	d := NewDBpedia("http://unused.invalid")

	uris, err := d.BatchLookupURIs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, uris)
}

func TestDBpedia_EntityInfo(t *testing.T) {
	fixture := sparqlFixture([]map[string]string{
		{"label": "Apple Inc.", "abstract": "Technology company.", "type": "http://dbpedia.org/ontology/Company"},
		{"label": "Apple Inc.", "abstract": "Technology company.", "type": "http://www.w3.org/2002/07/owl#Thing"},
	})

	server := newSPARQLServer(t, fixture, nil)
	defer server.Close()

	d := NewDBpedia(server.URL)

	info, err := d.EntityInfo(context.Background(), "http://dbpedia.org/resource/Apple_Inc.")

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Apple Inc.", info.Label)
	assert.Equal(t, "Technology company.", info.Description)
	assert.Equal(t, []string{
		"http://dbpedia.org/ontology/Company",
		"http://www.w3.org/2002/07/owl#Thing",
	}, info.Types)
}

func TestDBpedia_EntityInfo_UnknownURI(t *testing.T) {
	server := newSPARQLServer(t, sparqlFixture(nil), nil)
	defer server.Close()

	d := NewDBpedia(server.URL)

	info, err := d.EntityInfo(context.Background(), "http://dbpedia.org/resource/Nonexistent")

	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestSparqlLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Apple", `"Apple"`},
		{`He said "hi"`, `"He said \"hi\""`},
		{`back\slash`, `"back\\slash"`},
		{"line\nbreak", `"line\nbreak"`},
	}

	for _, tt := range tests {
		if got := sparqlLiteral(tt.in); got != tt.want {
			t.Errorf("sparqlLiteral(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
