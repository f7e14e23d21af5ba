package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilySource provides web search via the Tavily API.
// Tavily is used as a raw data source; its AI summary is disabled.
type TavilySource struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// TavilyOption configures a TavilySource.
type TavilyOption func(*TavilySource)

// WithTavilyEndpoint overrides the search endpoint.
func WithTavilyEndpoint(endpoint string) TavilyOption {
	return func(t *TavilySource) {
		t.endpoint = endpoint
	}
}

// WithTavilyHTTPClient overrides the HTTP client.
func WithTavilyHTTPClient(client *http.Client) TavilyOption {
	return func(t *TavilySource) {
		t.httpClient = client
	}
}

// NewTavilySource creates a new Tavily-backed web source.
func NewTavilySource(apiKey string, opts ...TavilyOption) *TavilySource {
	t := &TavilySource{
		apiKey:   apiKey,
		endpoint: tavilyEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the source identifier.
func (t *TavilySource) Name() string {
	return "tavily"
}

// Available returns true if the API key is configured.
func (t *TavilySource) Available() bool {
	return t.apiKey != ""
}

// tavilyRequest is the request payload for Tavily API.
type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

// tavilyResponse is the response from Tavily API.
type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Query searches the web for information matching the query.
func (t *TavilySource) Query(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if !t.Available() {
		return nil, fmt.Errorf("tavily API key not configured")
	}

	payload := tavilyRequest{
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: false,
		MaxResults:    maxResults,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily API error: status %d", resp.StatusCode)
	}

	var tavilyResp tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tavilyResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		results = append(results, Result{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
			Score:    r.Score,
			Provider: t.Name(),
		})
	}

	return limit(results, maxResults), nil
}
