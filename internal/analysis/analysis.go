package analysis

import (
	"context"
	"errors"
)

var (
	// ErrUnknownKind is returned when no analysis is registered for a kind.
	ErrUnknownKind = errors.New("unknown analysis kind")

	// ErrMissingParam is returned when a required request parameter is absent.
	ErrMissingParam = errors.New("missing required parameter")
)

// Query carries the request parameters shared by all analysis kinds.
type Query struct {
	Question string `json:"question"`
	State    string `json:"state"`
}

// Analysis is implemented by every job kind.
type Analysis interface {
	// Compute runs the analysis and returns a JSON-encodable result.
	Compute(ctx context.Context, q Query) (any, error)

	// Describe reports what the analysis does and which parameters it reads.
	Describe() Description
}

// Description describes a registered analysis.
type Description struct {
	Kind    string   `json:"kind"`
	Summary string   `json:"summary"`
	Params  []string `json:"params"`
}

// Func adapts a plain function to the Analysis interface.
type Func struct {
	Desc Description
	Fn   func(ctx context.Context, q Query) (any, error)
}

// Compute calls f.Fn.
func (f Func) Compute(ctx context.Context, q Query) (any, error) {
	return f.Fn(ctx, q)
}

// Describe returns f.Desc.
func (f Func) Describe() Description {
	return f.Desc
}
