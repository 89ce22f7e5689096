package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Event is one persisted conversational turn fragment. Events are immutable
// once written and totally ordered within a session by (created_at, id).
type Event struct {
	ID         int64
	SessionID  string
	Role       string
	Text       string
	CreatedAt  time.Time
	Importance int
	Embedding  []float32
	Keywords   []string
}

// InsertEvent persists an event plus its lexical and vector index rows.
// The embedding must match the store's configured dimension.
func (t *Tx) InsertEvent(e *Event) (int64, error) {
	if e.Text == "" {
		return 0, fault.New(fault.KindInvalidInput, "event text is empty")
	}
	if len(e.Embedding) != t.s.dim {
		return 0, fault.New(fault.KindCorruptEmbedding,
			"event embedding has dimension %d, want %d", len(e.Embedding), t.s.dim)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Importance < 1 {
		e.Importance = 1
	}
	if e.Importance > 10 {
		e.Importance = 10
	}

	var keywordsJSON any
	if len(e.Keywords) > 0 {
		raw, err := json.Marshal(e.Keywords)
		if err != nil {
			return 0, fault.Wrap(fault.KindStoreFailed, err, "marshaling keywords")
		}
		keywordsJSON = string(raw)
	}

	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO memory_events(session_id, role, text, created_at, importance, embedding_blob, keywords_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Role, e.Text, e.CreatedAt.Unix(), e.Importance,
		SerializeEmbedding(e.Embedding), keywordsJSON)
	if err != nil {
		return 0, fault.Wrap(fault.KindStoreFailed, err, "inserting event")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fault.Wrap(fault.KindStoreFailed, err, "reading event id")
	}
	e.ID = id

	if err := t.indexText(kindEvent, id, e.SessionID, e.Text, e.Embedding); err != nil {
		return 0, err
	}
	return id, nil
}

const (
	kindEvent = "event"
	kindChunk = "chunk"
)

// indexText adds a row to the FTS index and the vec0 candidate index.
func (t *Tx) indexText(kind string, refID int64, sessionID, text string, embedding []float32) error {
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO memory_fts(text, kind, ref_id, session_id) VALUES (?, ?, ?, ?)`,
		text, kind, refID, sessionID); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "indexing %s text", kind)
	}

	res, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO vec_map(kind, ref_id, session_id) VALUES (?, ?, ?)`,
		kind, refID, sessionID)
	if err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "mapping %s vector", kind)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "reading vec_map rowid")
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO vec_memories(rowid, embedding) VALUES (?, ?)`,
		rowID, SerializeEmbedding(embedding)); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "inserting %s vector", kind)
	}
	return nil
}

// ListEvents returns a session's events ordered oldest first.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, text, created_at, importance, embedding_blob, keywords_json
		FROM memory_events WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "listing events")
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

// GetEvents returns the named events in id order. Missing ids are skipped.
func (s *Store) GetEvents(ctx context.Context, ids []int64) ([]*Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, text, created_at, importance, embedding_blob, keywords_json
		FROM memory_events WHERE id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "getting events")
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

// EventCount returns the number of events in a session.
func (s *Store) EventCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fault.Wrap(fault.KindStoreFailed, err, "counting events")
	}
	return n, nil
}

// UncoveredEvents returns the session's events not covered by any semantic
// chunk, oldest first. These are the summarizer's raw material.
func (s *Store) UncoveredEvents(ctx context.Context, sessionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, text, created_at, importance, embedding_blob, keywords_json
		FROM memory_events
		WHERE session_id = ?
		  AND id > COALESCE((SELECT MAX(last_event_id) FROM semantic_chunks WHERE session_id = ?), 0)
		ORDER BY created_at ASC, id ASC`, sessionID, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "listing uncovered events")
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

func (s *Store) collectEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating events")
	}
	return events, nil
}

func (s *Store) scanEvent(r rowScanner) (*Event, error) {
	var e Event
	var createdAt int64
	var blob []byte
	var keywordsJSON sql.NullString
	if err := r.Scan(&e.ID, &e.SessionID, &e.Role, &e.Text, &createdAt, &e.Importance, &blob, &keywordsJSON); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning event")
	}
	e.CreatedAt = time.Unix(createdAt, 0)

	emb, err := DeserializeEmbedding(blob, s.dim)
	if err != nil {
		return nil, err
	}
	e.Embedding = emb

	if keywordsJSON.Valid && keywordsJSON.String != "" {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &e.Keywords); err != nil {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "decoding keywords")
		}
	}
	return &e, nil
}
