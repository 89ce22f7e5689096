package memory

import (
	"context"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/embeddings"
	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/store"
)

// Turn is the raw (user, assistant) pair of a completed chat turn. Reply
// is expected to already have think spans stripped.
type Turn struct {
	UserInput string
	Reply     string
}

// Writer persists an extractor's structured output: events with embeddings,
// entity upserts, co-occurrence and typed edges, and profile updates — all
// in one transaction per turn.
type Writer struct {
	store    *store.Store
	embedder embeddings.Embedder
	graph    *Graph
	logger   *zap.Logger
}

// NewWriter creates a writer sharing the graph's session serialization.
func NewWriter(s *store.Store, embedder embeddings.Embedder, graph *Graph, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: s, embedder: embedder, graph: graph, logger: logger}
}

// WriteTurn persists one turn. When the extraction carries no events the
// raw (user, assistant) pair is synthesized so the turn is never lost.
// Returns the ids of the inserted events, oldest first.
func (w *Writer) WriteTurn(ctx context.Context, sessionID string, turn Turn, ext *Extraction, policy Policy) ([]int64, error) {
	if ext == nil {
		ext = &Extraction{Importance: 5}
	}

	events := ext.Events
	if len(events) == 0 {
		events = []ExtractedEvent{
			{Role: "user", Text: turn.UserInput, Importance: ext.Importance},
			{Role: "assistant", Text: turn.Reply, Importance: ext.Importance},
		}
	}

	// Drop empties up front; the store refuses them anyway.
	kept := events[:0]
	for _, e := range events {
		if e.Text != "" {
			kept = append(kept, e)
		}
	}
	events = kept
	if len(events) == 0 {
		return nil, nil
	}

	texts := make([]string, len(events))
	for i, e := range events {
		texts[i] = e.Text
	}
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fault.Wrap(fault.KindEmbeddingFailed, err, "embedding %d events", len(events))
	}

	unlock := w.graph.LockSession(sessionID)
	defer unlock()

	tx, err := w.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Entities first so relation endpoints resolve.
	entityIDs := make(map[string]int64, len(ext.Entities))
	var idList []int64
	for _, entity := range ext.Entities {
		if entity.Name == "" {
			continue
		}
		id, err := w.graph.UpsertEntity(tx, sessionID, entity.Name, entity.Type)
		if err != nil {
			return nil, err
		}
		if _, dup := entityIDs[entity.Name]; !dup {
			entityIDs[entity.Name] = id
			idList = append(idList, id)
		}
	}

	var eventIDs []int64
	for i, e := range events {
		importance := e.Importance
		if importance == 0 {
			importance = ext.Importance
		}
		id, err := tx.InsertEvent(&store.Event{
			SessionID:  sessionID,
			Role:       e.Role,
			Text:       e.Text,
			Importance: importance,
			Embedding:  vectors[i],
			Keywords:   e.Keywords,
		})
		if err != nil {
			return nil, err
		}
		eventIDs = append(eventIDs, id)

		// Every entity referenced this turn co-occurs for each event.
		if len(idList) > 1 {
			if err := w.graph.RecordCooccurrence(tx, idList, importance, policy); err != nil {
				return nil, err
			}
		}
	}

	for _, rel := range ext.Relations {
		sourceID, okSource := entityIDs[rel.Source]
		targetID, okTarget := entityIDs[rel.Target]
		if !okSource || !okTarget {
			w.logger.Warn("skipping relation with unresolved endpoint",
				zap.String("source", rel.Source),
				zap.String("label", rel.Label),
				zap.String("target", rel.Target),
			)
			continue
		}
		weight := rel.Weight
		if weight <= 0 {
			weight = CooccurDelta(ext.Importance, policy)
		}
		if err := w.graph.AddTypedEdge(tx, sourceID, rel.Label, targetID, weight, policy); err != nil {
			return nil, err
		}
	}

	for _, update := range ext.Profile {
		if update.Key == "" {
			continue
		}
		if err := tx.UpsertProfile(sessionID, update.Key, update.Value, update.Importance); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	w.logger.Debug("turn persisted",
		zap.String("session_id", sessionID),
		zap.Int("events", len(eventIDs)),
		zap.Int("entities", len(entityIDs)),
		zap.Int("relations", len(ext.Relations)),
	)
	return eventIDs, nil
}
