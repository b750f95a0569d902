package kb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWikidata_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wbsearchentities", r.URL.Query().Get("action"))
		assert.Equal(t, "Apple", r.URL.Query().Get("search"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))

		fmt.Fprint(w, `{"search": [
			{"id": "Q312", "label": "Apple Inc.", "description": "American technology company", "concepturi": "http://www.wikidata.org/entity/Q312"},
			{"id": "Q89", "label": "apple", "description": "fruit of the apple tree"}
		]}`)
	}))
	defer server.Close()

	wd := NewWikidata(server.URL)

	candidates := wd.Search(context.Background(), "Apple", nil, 5)

	require.Len(t, candidates, 2)
	assert.Equal(t, "http://www.wikidata.org/entity/Q312", candidates[0].URI)
	assert.Equal(t, "Apple Inc.", candidates[0].Label)
	// Missing concepturi falls back to the entity URL
	assert.Equal(t, "http://www.wikidata.org/entity/Q89", candidates[1].URI)
}

func TestWikidata_Search_FailureReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	wd := NewWikidata(server.URL)

	assert.Nil(t, wd.Search(context.Background(), "Apple", nil, 5))
}

func TestWikidata_EntityInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wbgetentities", r.URL.Query().Get("action"))
		assert.Equal(t, "Q312", r.URL.Query().Get("ids"))

		fmt.Fprint(w, `{"entities": {"Q312": {
			"labels": {"en": {"value": "Apple Inc."}},
			"descriptions": {"en": {"value": "American technology company"}}
		}}}`)
	}))
	defer server.Close()

	wd := NewWikidata(server.URL)

	info, err := wd.EntityInfo(context.Background(), "http://www.wikidata.org/entity/Q312")

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Apple Inc.", info.Label)
	assert.Equal(t, "American technology company", info.Description)
}

func TestWikidata_EntityInfo_UnknownID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entities": {}}`)
	}))
	defer server.Close()

	wd := NewWikidata(server.URL)

	info, err := wd.EntityInfo(context.Background(), "Q99999999")

	require.NoError(t, err)
	assert.Nil(t, info)
}
