package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// ProfileEntry is one long-lived per-session preference.
type ProfileEntry struct {
	SessionID  string
	Key        string
	Value      string
	Importance int
	UpdatedAt  time.Time
}

// UpsertProfile applies a last-writer-wins update for the key, except that
// importance never decreases.
func (t *Tx) UpsertProfile(sessionID, key, value string, importance int) error {
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}

	var existing int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT importance FROM profile WHERE session_id = ? AND key = ?`,
		sessionID, key).Scan(&existing)

	switch err {
	case nil:
		if existing > importance {
			importance = existing
		}
		if _, err := t.tx.ExecContext(t.ctx,
			`UPDATE profile SET value = ?, importance = ?, updated_at = ? WHERE session_id = ? AND key = ?`,
			value, importance, nowUnix(), sessionID, key); err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "updating profile key %s", key)
		}
		return nil
	case sql.ErrNoRows:
		if _, err := t.tx.ExecContext(t.ctx,
			`INSERT INTO profile(session_id, key, value, importance, updated_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, key, value, importance, nowUnix()); err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "inserting profile key %s", key)
		}
		return nil
	default:
		return fault.Wrap(fault.KindStoreFailed, err, "querying profile key %s", key)
	}
}

// Profile returns all profile entries for a session, keyed alphabetically.
func (s *Store) Profile(ctx context.Context, sessionID string) ([]*ProfileEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, key, value, importance, updated_at
		FROM profile WHERE session_id = ? ORDER BY key ASC`, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "listing profile")
	}
	defer rows.Close()

	var entries []*ProfileEntry
	for rows.Next() {
		var p ProfileEntry
		var updatedAt int64
		if err := rows.Scan(&p.SessionID, &p.Key, &p.Value, &p.Importance, &updatedAt); err != nil {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning profile entry")
		}
		p.UpdatedAt = time.Unix(updatedAt, 0)
		entries = append(entries, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating profile")
	}
	return entries, nil
}
