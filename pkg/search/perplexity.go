package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const perplexityEndpoint = "https://api.perplexity.ai/search"

// PerplexitySource queries the Perplexity Search API for ranked web results.
type PerplexitySource struct {
	apiKey        string
	endpoint      string
	tokensPerPage int
	httpClient    *http.Client
}

// PerplexityOption configures a PerplexitySource.
type PerplexityOption func(*PerplexitySource)

// WithPerplexityEndpoint overrides the search endpoint.
func WithPerplexityEndpoint(endpoint string) PerplexityOption {
	return func(p *PerplexitySource) {
		p.endpoint = endpoint
	}
}

// WithTokensPerPage bounds how much text is extracted from each page.
func WithTokensPerPage(n int) PerplexityOption {
	return func(p *PerplexitySource) {
		p.tokensPerPage = n
	}
}

// NewPerplexitySource creates a Perplexity search source.
func NewPerplexitySource(apiKey string, opts ...PerplexityOption) *PerplexitySource {
	p := &PerplexitySource{
		apiKey:        apiKey,
		endpoint:      perplexityEndpoint,
		tokensPerPage: 512,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the source identifier.
func (p *PerplexitySource) Name() string {
	return "perplexity"
}

// Available returns true if the API key is configured.
func (p *PerplexitySource) Available() bool {
	return p.apiKey != ""
}

type perplexityRequest struct {
	Query            string `json:"query"`
	MaxResults       int    `json:"max_results"`
	MaxTokensPerPage int    `json:"max_tokens_per_page,omitempty"`
}

type perplexityResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
		Date    string `json:"date,omitempty"`
	} `json:"results"`
}

// Query searches the web for information matching the query.
func (p *PerplexitySource) Query(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if !p.Available() {
		return nil, fmt.Errorf("perplexity API key not configured")
	}

	body, err := json.Marshal(perplexityRequest{
		Query:            query,
		MaxResults:       maxResults,
		MaxTokensPerPage: p.tokensPerPage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("perplexity search error: status %d: %s", resp.StatusCode, snippet)
	}

	var out perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Snippet,
			Provider: p.Name(),
		})
	}
	return limit(results, maxResults), nil
}
