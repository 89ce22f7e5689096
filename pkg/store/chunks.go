package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Chunk is a semantic summary covering a contiguous, non-overlapping range
// of a session's events. Immutable once written.
type Chunk struct {
	ID           int64
	SessionID    string
	Text         string
	Summary      string
	FirstEventID int64
	LastEventID  int64
	CreatedAt    time.Time
	Importance   int
	Embedding    []float32
}

// InsertChunk persists a chunk after verifying its covered range does not
// overlap any existing chunk in the session.
func (t *Tx) InsertChunk(c *Chunk) (int64, error) {
	if c.FirstEventID > c.LastEventID {
		return 0, fault.New(fault.KindInvalidInput,
			"chunk range [%d, %d] is inverted", c.FirstEventID, c.LastEventID)
	}
	if len(c.Embedding) != t.s.dim {
		return 0, fault.New(fault.KindCorruptEmbedding,
			"chunk embedding has dimension %d, want %d", len(c.Embedding), t.s.dim)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Importance < 1 {
		c.Importance = 1
	}
	if c.Importance > 10 {
		c.Importance = 10
	}

	var overlaps int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT COUNT(*) FROM semantic_chunks
		WHERE session_id = ? AND first_event_id <= ? AND last_event_id >= ?`,
		c.SessionID, c.LastEventID, c.FirstEventID).Scan(&overlaps)
	if err != nil {
		return 0, fault.Wrap(fault.KindStoreFailed, err, "checking chunk overlap")
	}
	if overlaps > 0 {
		return 0, fault.New(fault.KindStoreFailed,
			"chunk range [%d, %d] overlaps an existing chunk", c.FirstEventID, c.LastEventID)
	}

	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO semantic_chunks(session_id, text, summary, first_event_id, last_event_id, created_at, importance, embedding_blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Text, c.Summary, c.FirstEventID, c.LastEventID,
		c.CreatedAt.Unix(), c.Importance, SerializeEmbedding(c.Embedding))
	if err != nil {
		return 0, fault.Wrap(fault.KindStoreFailed, err, "inserting chunk")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fault.Wrap(fault.KindStoreFailed, err, "reading chunk id")
	}
	c.ID = id

	if err := t.indexText(kindChunk, id, c.SessionID, c.Text+" "+c.Summary, c.Embedding); err != nil {
		return 0, err
	}
	return id, nil
}

// ListChunks returns a session's chunks ordered by covered range.
func (s *Store) ListChunks(ctx context.Context, sessionID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, text, summary, first_event_id, last_event_id, created_at, importance, embedding_blob
		FROM semantic_chunks WHERE session_id = ?
		ORDER BY first_event_id ASC`, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "listing chunks")
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating chunks")
	}
	return chunks, nil
}

// GetChunk returns one chunk by id, or nil when absent.
func (s *Store) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, text, summary, first_event_id, last_event_id, created_at, importance, embedding_blob
		FROM semantic_chunks WHERE id = ?`, id)
	c, err := s.scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) scanChunk(r rowScanner) (*Chunk, error) {
	var c Chunk
	var createdAt int64
	var blob []byte
	if err := r.Scan(&c.ID, &c.SessionID, &c.Text, &c.Summary, &c.FirstEventID, &c.LastEventID, &createdAt, &c.Importance, &blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "chunk not found")
		}
		return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning chunk")
	}
	c.CreatedAt = time.Unix(createdAt, 0)

	emb, err := DeserializeEmbedding(blob, s.dim)
	if err != nil {
		return nil, err
	}
	c.Embedding = emb
	return &c, nil
}
