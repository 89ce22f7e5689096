package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Session is one conversation thread. At most one session is active at a
// time; operations that omit a session id resolve against the active one.
type Session struct {
	ID        string
	User      string
	CreatedAt time.Time
	Active    bool
}

// CreateSession inserts a new session. When activate is true the new
// session becomes the single active one.
func (s *Store) CreateSession(ctx context.Context, user string, activate bool) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		User:      user,
		CreatedAt: time.Now(),
		Active:    activate,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if activate {
			if _, err := tx.ExecContext(ctx, `UPDATE sessions SET active = 0 WHERE active = 1`); err != nil {
				return fault.Wrap(fault.KindStoreFailed, err, "deactivating sessions")
			}
		}
		active := 0
		if activate {
			active = 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions(id, user, created_at, active) VALUES (?, ?, ?, ?)`,
			session.ID, session.User, session.CreatedAt.Unix(), active)
		if err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "inserting session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ActiveSession returns the active session, or nil when none is marked.
func (s *Store) ActiveSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user, created_at, active FROM sessions WHERE active = 1 LIMIT 1`)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "querying active session")
	}
	return session, nil
}

// SetActiveSession marks the given session active and deactivates the rest.
func (s *Store) SetActiveSession(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET active = 0 WHERE active = 1`); err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "deactivating sessions")
		}
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET active = 1 WHERE id = ?`, id)
		if err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "activating session")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "activating session")
		}
		if n == 0 {
			return fault.New(fault.KindStoreFailed, "session %s not found", id)
		}
		return nil
	})
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user, created_at, active FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "listing sessions")
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning session")
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating sessions")
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var session Session
	var createdAt int64
	var active int
	if err := r.Scan(&session.ID, &session.User, &createdAt, &active); err != nil {
		return nil, err
	}
	session.CreatedAt = time.Unix(createdAt, 0)
	session.Active = active != 0
	return &session, nil
}
