// Package search provides the external search sources used to augment a
// request with outside context before it is executed.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is one document returned by a search source.
type Result struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Snippet  string  `json:"snippet"`
	Score    float64 `json:"score,omitempty"`
	Provider string  `json:"provider"`
}

// Source defines the interface for search sources.
type Source interface {
	// Name returns the source identifier.
	Name() string

	// Query returns at most maxResults documents for the query.
	Query(ctx context.Context, query string, maxResults int) ([]Result, error)

	// Available returns true if the source is configured.
	Available() bool
}

// Registry holds the configured sources by name.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source. Re-registering a name replaces it.
func (r *Registry) Register(source Source) {
	name := source.Name()
	if _, ok := r.sources[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sources[name] = source
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Pick returns the named source if available, otherwise the first available
// source in registration order. It returns nil when none is available.
func (r *Registry) Pick(preferred string) Source {
	if s, ok := r.sources[preferred]; ok && s.Available() {
		return s
	}
	if preferred == "none" {
		return nil
	}
	for _, name := range r.order {
		if s := r.sources[name]; s.Available() {
			return s
		}
	}
	return nil
}

// FormatContext renders results as a block for a system prompt.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Relevant context from web search:\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "\n[%d] %s\n%s\n", i+1, r.Title, strings.TrimSpace(r.Snippet))
	}
	return sb.String()
}

// FormatSources renders results as "[n] title - url" lines.
func FormatSources(results []Result) []string {
	out := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "Source"
		}
		out = append(out, fmt.Sprintf("[%d] %s - %s", i+1, title, r.URL))
	}
	return out
}

func limit(results []Result, maxResults int) []Result {
	if maxResults > 0 && len(results) > maxResults {
		return results[:maxResults]
	}
	return results
}
