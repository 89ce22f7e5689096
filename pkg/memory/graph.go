package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/store"
)

// Graph wraps the entity/edge tables with the co-occurrence and traversal
// semantics of the knowledge graph. Writes are serialized per session so
// endpoint upserts and their edges commit atomically relative to each
// other.
type Graph struct {
	store  *store.Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGraph creates a graph over the given store.
func NewGraph(s *store.Store, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{store: s, logger: logger, locks: make(map[string]*sync.Mutex)}
}

// LockSession serializes graph updates for one session. The returned
// function releases the lock.
func (g *Graph) LockSession(sessionID string) func() {
	g.mu.Lock()
	lock, ok := g.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[sessionID] = lock
	}
	g.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// UpsertEntity inserts or bumps the named entity inside tx.
func (g *Graph) UpsertEntity(tx *store.Tx, sessionID, name, entityType string) (int64, error) {
	return tx.UpsertEntity(sessionID, name, entityType)
}

// CooccurDelta maps an importance score to the edge-weight delta:
// importance / divisor, clamped to [min, max].
func CooccurDelta(importance int, policy Policy) float64 {
	divisor := policy.CooccurDivisor
	if divisor <= 0 {
		divisor = 10.0
	}
	delta := float64(importance) / divisor
	if delta < policy.MinEdgeWeight {
		delta = policy.MinEdgeWeight
	}
	if delta > policy.MaxEdgeWeight {
		delta = policy.MaxEdgeWeight
	}
	return delta
}

// RecordCooccurrence upserts a co-occurrence edge for every unordered pair
// of the given entity ids inside tx. Direction is canonicalized to
// (min id, max id) so each pair maps to exactly one row.
func (g *Graph) RecordCooccurrence(tx *store.Tx, entityIDs []int64, importance int, policy Policy) error {
	delta := CooccurDelta(importance, policy)
	for i := 0; i < len(entityIDs); i++ {
		for j := i + 1; j < len(entityIDs); j++ {
			source, target := entityIDs[i], entityIDs[j]
			if source == target {
				continue
			}
			if source > target {
				source, target = target, source
			}
			if err := tx.UpsertEdge(source, CooccurRelation, target,
				delta, policy.MinEdgeWeight, policy.MaxEdgeWeight, policy.WeightAccumulation); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddTypedEdge idempotently upserts a labeled relation inside tx.
func (g *Graph) AddTypedEdge(tx *store.Tx, sourceID int64, relation string, targetID int64, weight float64, policy Policy) error {
	return tx.UpsertEdge(sourceID, relation, targetID,
		weight, policy.MinEdgeWeight, policy.MaxEdgeWeight, policy.WeightAccumulation)
}

// Subgraph is the result of a neighborhood expansion.
type Subgraph struct {
	Entities map[int64]*store.Entity
	Edges    []*store.Edge
}

// Neighbors expands breadth-first from the given entity, pruning edges
// below minWeight and stopping at maxDepth hops. Cycle-safe via a visited
// set keyed by entity id.
func (g *Graph) Neighbors(ctx context.Context, entityID int64, maxDepth int, minWeight float64) (*Subgraph, error) {
	sub := &Subgraph{Entities: make(map[int64]*store.Entity)}
	visited := map[int64]bool{entityID: true}
	frontier := []int64{entityID}
	seenEdges := make(map[[2]int64]map[string]bool)

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int64
		for _, id := range frontier {
			edges, err := g.store.EdgesFrom(ctx, id, minWeight)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				pair := [2]int64{e.SourceID, e.TargetID}
				if seenEdges[pair] == nil {
					seenEdges[pair] = make(map[string]bool)
				}
				if seenEdges[pair][e.Relation] {
					continue
				}
				seenEdges[pair][e.Relation] = true
				sub.Edges = append(sub.Edges, e)

				other := e.TargetID
				if other == id {
					other = e.SourceID
				}
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	for id := range visited {
		entity, err := g.entityByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			sub.Entities[id] = entity
		}
	}
	return sub, nil
}

func (g *Graph) entityByID(ctx context.Context, id int64) (*store.Entity, error) {
	// Entities are per-session, but ids are global; scan by id.
	row := g.store.DB().QueryRowContext(ctx, `
		SELECT id, session_id, name, type, first_seen, mention_count
		FROM entities WHERE id = ?`, id)
	var e store.Entity
	var firstSeen int64
	err := row.Scan(&e.ID, &e.SessionID, &e.Name, &e.Type, &firstSeen, &e.MentionCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning entity %d", id)
	}
	e.FirstSeen = time.Unix(firstSeen, 0)
	return &e, nil
}
