// Package eventstream defines transport-neutral events emitted by the
// runtime after background persistence, plus the Publisher capability.
package eventstream

import (
	"context"
	"errors"
	"time"
)

// ErrNilTurnEvent indicates a nil turn event payload was provided to a publisher.
var ErrNilTurnEvent = errors.New("nil turn event")

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a turn's memory writer
	// transaction commits.
	EventTypeTurnPersisted = "loom.turn.persisted"
)

// TurnPersistedEvent is the payload published after a conversation turn is
// persisted to the memory store.
type TurnPersistedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	SessionID string `json:"session_id"`
	AgentName string `json:"agent_name"`

	// MemoryEventIDs are the ids of the events the writer inserted.
	MemoryEventIDs []int64 `json:"memory_event_ids"`

	// EntityCount and RelationCount summarize the graph delta.
	EntityCount   int `json:"entity_count"`
	RelationCount int `json:"relation_count"`
}

// Publisher publishes turn events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnPersistedEvent) error
	Close() error
}
