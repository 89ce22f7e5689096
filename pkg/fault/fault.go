// Package fault defines the error taxonomy shared across the loom runtime.
//
// Every error surfaced by the public facade carries a stable, machine-readable
// [Kind] plus a human-readable message. Components wrap underlying causes with
// [New] / [Wrap]; callers classify with [KindOf] or errors.Is against the
// sentinel kinds.
package fault

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error classification.
type Kind string

const (
	// KindUnknownAgent is returned when an agent name does not resolve.
	KindUnknownAgent Kind = "unknown_agent"

	// KindAgentAlreadyRegistered is returned on duplicate agent registration.
	KindAgentAlreadyRegistered Kind = "agent_already_registered"

	// KindInvalidInput is returned for empty or oversize user input.
	KindInvalidInput Kind = "invalid_input"

	// KindOverloaded is returned when the scheduler queue is full or the
	// circuit breaker is open. Callers may retry with backoff.
	KindOverloaded Kind = "overloaded"

	// KindTimedOut is returned when a request deadline expires mid-decode.
	KindTimedOut Kind = "timed_out"

	// KindCancelled is returned when the caller cancels an in-flight request.
	KindCancelled Kind = "cancelled"

	// KindGrammarTerminated marks a reply truncated by grammar exhaustion.
	// It is a warning attached to an otherwise usable reply.
	KindGrammarTerminated Kind = "grammar_terminated"

	// KindEmbeddingFailed covers transient embedder faults.
	KindEmbeddingFailed Kind = "embedding_failed"

	// KindModelFailed covers transient model inference faults.
	KindModelFailed Kind = "model_failed"

	// KindStoreFailed covers transactional store failures.
	KindStoreFailed Kind = "store_failed"

	// KindCorruptEmbedding is fatal: a persisted embedding blob has the
	// wrong length for the embedder's dimension.
	KindCorruptEmbedding Kind = "corrupt_embedding"

	// KindSchemaIncompatible is fatal at open: the on-disk schema is newer
	// than this binary understands.
	KindSchemaIncompatible Kind = "schema_incompatible"
)

// Error is the single error type surfaced by the runtime.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two fault errors by kind.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind
	}
	return false
}

// New creates a fault error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. A nil cause
// yields a plain fault error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the fault kind from err, or "" if err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Retryable reports whether the error class is worth retrying with backoff.
// Configuration errors, cancellations and fatal corruption are not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindEmbeddingFailed, KindModelFailed, KindStoreFailed:
		return true
	default:
		return false
	}
}
