package store

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Candidate is a retrieval candidate: either an event or a chunk, with
// whatever scoring inputs the fetch path produced. Dense candidates carry
// the stored embedding; lexical candidates carry a normalized BM25 score.
type Candidate struct {
	Kind         string // "event" or "chunk"
	RefID        int64
	SessionID    string
	Role         string // events only
	Text         string
	Summary      string // chunks only
	CreatedAt    time.Time
	Importance   int
	Embedding    []float32
	Lexical      float64 // normalized BM25 in [0, 1]; 0 when not from FTS
	FirstEventID int64   // chunks only
	LastEventID  int64   // chunks only
}

// SearchDense returns up to n candidates nearest to the query embedding,
// scoped to the session. The vec0 KNN runs unscoped, so it over-fetches and
// filters; callers re-score with exact cosine, this is candidate generation
// only.
func (s *Store) SearchDense(ctx context.Context, sessionID string, query []float32, n int) ([]*Candidate, error) {
	if n <= 0 || len(query) != s.dim {
		return nil, nil
	}

	// Over-fetch so session filtering still leaves n rows in mixed stores.
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.kind, m.ref_id
		FROM vec_memories v
		INNER JOIN vec_map m ON m.rowid = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ? AND m.session_id = ?
		ORDER BY v.distance`,
		SerializeEmbedding(query), n*4, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "querying dense candidates")
	}
	defer rows.Close()

	type ref struct {
		kind string
		id   int64
	}
	var refs []ref
	for rows.Next() {
		var r ref
		if err := rows.Scan(&r.kind, &r.id); err != nil {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning dense candidate")
		}
		refs = append(refs, r)
		if len(refs) >= n {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating dense candidates")
	}
	rows.Close()

	candidates := make([]*Candidate, 0, len(refs))
	for _, r := range refs {
		c, err := s.loadCandidate(ctx, r.kind, r.id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// SearchLexical returns up to n candidates matching the query text via the
// FTS5 index, best match first, with BM25 normalized to [0, 1].
func (s *Store) SearchLexical(ctx context.Context, sessionID, queryText string, n int) ([]*Candidate, error) {
	match := ftsQuery(queryText)
	if match == "" || n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ref_id, bm25(memory_fts)
		FROM memory_fts
		WHERE memory_fts MATCH ? AND session_id = ?
		ORDER BY bm25(memory_fts)
		LIMIT ?`, match, sessionID, n)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "querying lexical candidates")
	}
	defer rows.Close()

	type hit struct {
		kind  string
		id    int64
		bm25  float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.kind, &h.id, &h.bm25); err != nil {
			return nil, fault.Wrap(fault.KindStoreFailed, err, "scanning lexical candidate")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "iterating lexical candidates")
	}
	rows.Close()

	candidates := make([]*Candidate, 0, len(hits))
	for _, h := range hits {
		c, err := s.loadCandidate(ctx, h.kind, h.id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			s.logger.Warn("lexical index row without backing record",
				zap.String("kind", h.kind), zap.Int64("ref_id", h.id))
			continue
		}
		// FTS5 BM25 is a cost: more negative is better. Flip and squash.
		score := -h.bm25
		if score < 0 {
			score = 0
		}
		c.Lexical = score / (1 + score)
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (s *Store) loadCandidate(ctx context.Context, kind string, refID int64) (*Candidate, error) {
	switch kind {
	case kindEvent:
		events, err := s.GetEvents(ctx, []int64{refID})
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return nil, nil
		}
		e := events[0]
		return &Candidate{
			Kind:       kindEvent,
			RefID:      e.ID,
			SessionID:  e.SessionID,
			Role:       e.Role,
			Text:       e.Text,
			CreatedAt:  e.CreatedAt,
			Importance: e.Importance,
			Embedding:  e.Embedding,
		}, nil
	case kindChunk:
		c, err := s.GetChunk(ctx, refID)
		if err != nil || c == nil {
			return nil, err
		}
		return &Candidate{
			Kind:         kindChunk,
			RefID:        c.ID,
			SessionID:    c.SessionID,
			Text:         c.Text,
			Summary:      c.Summary,
			CreatedAt:    c.CreatedAt,
			Importance:   c.Importance,
			Embedding:    c.Embedding,
			FirstEventID: c.FirstEventID,
			LastEventID:  c.LastEventID,
		}, nil
	}
	return nil, nil
}

// ftsQuery turns free text into a safe FTS5 match expression: each
// alphanumeric token quoted, joined with OR.
func ftsQuery(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}
