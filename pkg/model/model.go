// Package model defines the model-handle capability consumed by the
// scheduler, and the scheduler itself: the single-writer queue that owns
// all inference against the one GPU-resident model.
package model

import "context"

// State is an opaque conditioning-state snapshot. The scheduler caches
// loaded snapshots by id and passes them back verbatim; only the handle
// interprets them.
type State any

// Params are the decoding parameters applied per request.
type Params struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// DefaultParams mirrors the default inference parameters: 1024 tokens,
// temperature 0.7, top-p 0.9.
func DefaultParams() Params {
	return Params{
		MaxTokens:   1024,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// GenerateRequest is the handle-level decode request. Stop handling,
// grammar constraints and budget enforcement live in the scheduler; the
// handle only streams tokens.
type GenerateRequest struct {
	// Prompt is the fully assembled prompt text.
	Prompt string

	// State is the initial conditioning state, nil for the base state.
	State State

	// Params are the sampling parameters.
	Params Params
}

// Handle is the capability wrapping the inference kernel. Implementations
// are NOT reentrant: the scheduler guarantees at most one Generate call is
// in flight at a time.
type Handle interface {
	// LoadState loads the conditioning-state snapshot addressed by id.
	LoadState(ctx context.Context, id string) (State, error)

	// Generate decodes from the request, calling emit once per produced
	// token. Returning false from emit stops decoding at the next token
	// boundary; Generate then returns nil. Generate returns an error only
	// for infrastructure faults, never for early stops.
	Generate(ctx context.Context, req GenerateRequest, emit func(token string) bool) error

	// Close releases the model.
	Close() error
}
