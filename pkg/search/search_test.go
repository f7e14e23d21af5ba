package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySourceQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, false, req["include_answer"])
		assert.Equal(t, "advanced", req["search_depth"])
		assert.Equal(t, float64(2), req["max_results"])

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Test Result", "url": "https://example.com/test", "content": "raw content", "score": 0.95},
				{"title": "Another", "url": "https://example.com/other", "content": "more", "score": 0.82},
				{"title": "Extra", "url": "https://example.com/extra", "content": "ignored", "score": 0.1},
			},
		})
	}))
	defer server.Close()

	src := NewTavilySource("test-key", WithTavilyEndpoint(server.URL))
	results, err := src.Query(context.Background(), "golang generics", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Test Result", results[0].Title)
	assert.Equal(t, "https://example.com/test", results[0].URL)
	assert.Equal(t, "tavily", results[0].Provider)
}

func TestTavilySourceUnavailable(t *testing.T) {
	src := NewTavilySource("")
	assert.False(t, src.Available())
	_, err := src.Query(context.Background(), "q", 5)
	assert.Error(t, err)
}

func TestPerplexitySourceQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req perplexityRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "latest go release", req.Query)
		assert.Equal(t, 5, req.MaxResults)

		results := make([]map[string]any, 0, 7)
		for i := 0; i < 7; i++ {
			results = append(results, map[string]any{
				"title":   fmt.Sprintf("Result %d", i),
				"url":     fmt.Sprintf("https://example.com/%d", i),
				"snippet": "snippet",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer server.Close()

	src := NewPerplexitySource("test-key", WithPerplexityEndpoint(server.URL))
	results, err := src.Query(context.Background(), "latest go release", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5, "results must be bounded")
	assert.Equal(t, "perplexity", results[4].Provider)
}

func TestPerplexitySourceStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := NewPerplexitySource("test-key", WithPerplexityEndpoint(server.URL))
	_, err := src.Query(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestRegistryPick(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewPerplexitySource(""))
	reg.Register(NewTavilySource("key"))

	picked := reg.Pick("perplexity")
	require.NotNil(t, picked)
	assert.Equal(t, "tavily", picked.Name(), "unavailable preference falls back to the next available source")
	assert.Nil(t, reg.Pick("none"))

	empty := NewRegistry()
	assert.Nil(t, empty.Pick("tavily"))
}

func TestFormatting(t *testing.T) {
	results := []Result{
		{Title: "Go 1.24", URL: "https://go.dev/doc/go1.24", Snippet: " release notes "},
		{URL: "https://example.com"},
	}
	assert.Equal(t, []string{
		"[1] Go 1.24 - https://go.dev/doc/go1.24",
		"[2] Source - https://example.com",
	}, FormatSources(results))

	ctx := FormatContext(results)
	assert.Contains(t, ctx, "[1] Go 1.24\nrelease notes")
	assert.Empty(t, FormatContext(nil))
}
