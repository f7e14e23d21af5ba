// Package registry holds the static set of backends the service can route to.
// A Registry is built once at startup and is read-only afterwards, so it can
// be shared by every in-flight request without locking.
package registry

import (
	"fmt"
	"time"

	"github.com/zen-systems/switchboard/pkg/schema"
)

// Kind distinguishes how a backend is used.
type Kind string

const (
	KindChat        Kind = "chat"
	KindLongContext Kind = "long_context"
	KindSearch      Kind = "search"
)

// Backend describes one routable model endpoint.
type Backend struct {
	ID           string
	Adapter      string
	Model        string
	Kind         Kind
	Tags         []schema.Intent
	CostTier     schema.CostTier
	ContextLimit int
	MaxOutput    int
	Temperature  float64
	Timeout      time.Duration
}

// HasTag reports whether the backend is preferred for the intent.
func (b Backend) HasTag(intent schema.Intent) bool {
	for _, tag := range b.Tags {
		if tag == intent {
			return true
		}
	}
	return false
}

// Registry is an ordered, immutable backend set.
type Registry struct {
	backends []Backend
	index    map[string]int
}

// New validates and indexes backends. Order is preserved.
func New(backends []Backend) (*Registry, error) {
	r := &Registry{
		backends: make([]Backend, 0, len(backends)),
		index:    make(map[string]int, len(backends)),
	}
	for _, b := range backends {
		if b.ID == "" {
			return nil, fmt.Errorf("backend id is required")
		}
		if _, dup := r.index[b.ID]; dup {
			return nil, fmt.Errorf("duplicate backend id %q", b.ID)
		}
		if b.Adapter == "" {
			return nil, fmt.Errorf("backend %s: adapter is required", b.ID)
		}
		if b.Model == "" {
			return nil, fmt.Errorf("backend %s: model is required", b.ID)
		}
		if b.CostTier != "" && !b.CostTier.Valid() {
			return nil, fmt.Errorf("backend %s: invalid cost tier %q", b.ID, b.CostTier)
		}
		for _, tag := range b.Tags {
			if !tag.Valid() {
				return nil, fmt.Errorf("backend %s: invalid capability tag %q", b.ID, tag)
			}
		}
		b.Tags = append([]schema.Intent(nil), b.Tags...)
		r.index[b.ID] = len(r.backends)
		r.backends = append(r.backends, b)
	}
	return r, nil
}

// Get looks up a backend by id.
func (r *Registry) Get(id string) (Backend, bool) {
	i, ok := r.index[id]
	if !ok {
		return Backend{}, false
	}
	return r.backends[i], true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// All returns every backend in registration order.
func (r *Registry) All() []Backend {
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Tagged returns the backends preferred for intent, in registration order.
func (r *Registry) Tagged(intent schema.Intent) []Backend {
	var out []Backend
	for _, b := range r.backends {
		if b.HasTag(intent) {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the number of backends.
func (r *Registry) Len() int {
	return len(r.backends)
}
