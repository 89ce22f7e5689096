package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Entity is a node in the per-session knowledge graph. Name is unique per
// session; mention_count only ever grows.
type Entity struct {
	ID           int64
	SessionID    string
	Name         string
	Type         string
	FirstSeen    time.Time
	MentionCount int
}

// Edge is a directed labeled relation between two entities.
// (SourceID, Relation, TargetID) is the natural key.
type Edge struct {
	SourceID  int64
	Relation  string
	TargetID  int64
	Weight    float64
	UpdatedAt time.Time
}

// UpsertEntity inserts the entity if absent (mention_count 1), otherwise
// increments mention_count. Type is filled in only when previously empty.
// Returns the entity id either way.
func (t *Tx) UpsertEntity(sessionID, name, entityType string) (int64, error) {
	var id int64
	var existingType string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, type FROM entities WHERE session_id = ? AND name = ?`,
		sessionID, name).Scan(&id, &existingType)

	switch err {
	case nil:
		if existingType == "" && entityType != "" {
			if _, err := t.tx.ExecContext(t.ctx,
				`UPDATE entities SET mention_count = mention_count + 1, type = ? WHERE id = ?`,
				entityType, id); err != nil {
				return 0, fault.Wrap(fault.KindStoreFailed, err, "updating entity %s", name)
			}
		} else {
			if _, err := t.tx.ExecContext(t.ctx,
				`UPDATE entities SET mention_count = mention_count + 1 WHERE id = ?`, id); err != nil {
				return 0, fault.Wrap(fault.KindStoreFailed, err, "updating entity %s", name)
			}
		}
		return id, nil
	case sql.ErrNoRows:
		res, err := t.tx.ExecContext(t.ctx,
			`INSERT INTO entities(session_id, name, type, first_seen, mention_count) VALUES (?, ?, ?, ?, 1)`,
			sessionID, name, entityType, nowUnix())
		if err != nil {
			return 0, fault.Wrap(fault.KindStoreFailed, err, "inserting entity %s", name)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fault.Wrap(fault.KindStoreFailed, err, "reading entity id")
		}
		return id, nil
	default:
		return 0, fault.Wrap(fault.KindStoreFailed, err, "querying entity %s", name)
	}
}

// UpsertEdge inserts or updates the edge row for the natural key. When
// accumulate is true the delta adds to the existing weight; otherwise it
// replaces it. The result is clamped to [minWeight, maxWeight] either way.
func (t *Tx) UpsertEdge(sourceID int64, relation string, targetID int64, delta, minWeight, maxWeight float64, accumulate bool) error {
	var current float64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT weight FROM edges WHERE source_id = ? AND relation = ? AND target_id = ?`,
		sourceID, relation, targetID).Scan(&current)

	switch err {
	case nil:
		next := delta
		if accumulate {
			next = current + delta
		}
		next = clamp(next, minWeight, maxWeight)
		if _, err := t.tx.ExecContext(t.ctx,
			`UPDATE edges SET weight = ?, updated_at = ? WHERE source_id = ? AND relation = ? AND target_id = ?`,
			next, nowUnix(), sourceID, relation, targetID); err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "updating edge")
		}
		return nil
	case sql.ErrNoRows:
		if _, err := t.tx.ExecContext(t.ctx,
			`INSERT INTO edges(source_id, relation, target_id, weight, updated_at) VALUES (?, ?, ?, ?, ?)`,
			sourceID, relation, targetID, clamp(delta, minWeight, maxWeight), nowUnix()); err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "inserting edge")
		}
		return nil
	default:
		return fault.Wrap(fault.KindStoreFailed, err, "querying edge")
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetEntity returns a session's entity by name, or nil when absent.
func (s *Store) GetEntity(ctx context.Context, sessionID, name string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, name, type, first_seen, mention_count
		FROM entities WHERE session_id = ? AND name = ?`, sessionID, name)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "querying entity")
	}
	return e, nil
}

// ListEntities returns all entities in a session ordered by id.
func (s *Store) ListEntities(ctx context.Context, sessionID string) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, name, type, first_seen, mention_count
		FROM entities WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "listing entities")
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning entity")
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating entities")
	}
	return entities, nil
}

// GetEdge returns the edge row for the natural key, or nil when absent.
func (s *Store) GetEdge(ctx context.Context, sourceID int64, relation string, targetID int64) (*Edge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, relation, target_id, weight, updated_at
		FROM edges WHERE source_id = ? AND relation = ? AND target_id = ?`,
		sourceID, relation, targetID)
	e, err := scanEdge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "querying edge")
	}
	return e, nil
}

// EdgesFrom returns all edges touching the entity (either direction) with
// weight of at least minWeight.
func (s *Store) EdgesFrom(ctx context.Context, entityID int64, minWeight float64) ([]*Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, relation, target_id, weight, updated_at
		FROM edges WHERE (source_id = ? OR target_id = ?) AND weight >= ?
		ORDER BY weight DESC`, entityID, entityID, minWeight)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "listing edges")
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning edge")
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating edges")
	}
	return edges, nil
}

func scanEntity(r rowScanner) (*Entity, error) {
	var e Entity
	var firstSeen int64
	if err := r.Scan(&e.ID, &e.SessionID, &e.Name, &e.Type, &firstSeen, &e.MentionCount); err != nil {
		return nil, err
	}
	e.FirstSeen = time.Unix(firstSeen, 0)
	return &e, nil
}

func scanEdge(r rowScanner) (*Edge, error) {
	var e Edge
	var updatedAt int64
	if err := r.Scan(&e.SourceID, &e.Relation, &e.TargetID, &e.Weight, &updatedAt); err != nil {
		return nil, err
	}
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}
