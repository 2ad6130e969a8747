package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the analyses available to the worker pool, keyed by job kind.
type Registry struct {
	mu       sync.RWMutex
	analyses map[string]Analysis
}

// NewRegistry creates an empty analysis registry.
func NewRegistry() *Registry {
	return &Registry{
		analyses: make(map[string]Analysis),
	}
}

// Register adds an analysis under the given kind, replacing any previous one.
func (r *Registry) Register(kind string, a Analysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[kind] = a
}

// Resolve returns the analysis registered for kind.
func (r *Registry) Resolve(kind string) (Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.analyses[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return a, nil
}

// Has reports whether an analysis is registered for kind.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.analyses[kind]
	return ok
}

// List returns the descriptions of all registered analyses, sorted by kind
// for a stable API response.
func (r *Registry) List() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Description, 0, len(r.analyses))
	for kind, a := range r.analyses {
		d := a.Describe()
		d.Kind = kind
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].Kind < descs[j].Kind
	})
	return descs
}

// Compute resolves kind, decodes params into a Query and runs the analysis.
func (r *Registry) Compute(ctx context.Context, kind string, params json.RawMessage) (any, error) {
	a, err := r.Resolve(kind)
	if err != nil {
		return nil, err
	}

	q, err := DecodeQuery(params)
	if err != nil {
		return nil, err
	}
	return a.Compute(ctx, q)
}

// DecodeQuery parses request parameters. Empty or null params yield a zero
// Query; anything other than a JSON object is an error.
func DecodeQuery(params json.RawMessage) (Query, error) {
	var q Query
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return q, nil
	}
	if trimmed[0] != '{' {
		return q, fmt.Errorf("params must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, &q); err != nil {
		return q, fmt.Errorf("decode params: %w", err)
	}
	return q, nil
}
