package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/embeddings"
	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/store"
)

// Retriever performs hybrid (dense + lexical) retrieval with time-decayed,
// importance-weighted score fusion.
type Retriever struct {
	store    *store.Store
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewRetriever creates a retriever over the given store and embedder.
func NewRetriever(s *store.Store, embedder embeddings.Embedder, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: s, embedder: embedder, logger: logger}
}

// Retrieve embeds the query and returns the top-k memories for the session.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, queryText string, k int, policy Policy) ([]ScoredMemory, error) {
	q, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fault.Wrap(fault.KindEmbeddingFailed, err, "embedding query")
	}
	return r.RetrieveWithEmbedding(ctx, sessionID, queryText, q, k, policy)
}

// RetrieveWithEmbedding runs retrieval against a pre-computed query
// embedding, letting the turn pipeline embed the user input exactly once.
func (r *Retriever) RetrieveWithEmbedding(ctx context.Context, sessionID, queryText string, q []float32, k int, policy Policy) ([]ScoredMemory, error) {
	if k <= 0 {
		return nil, nil
	}

	factor := policy.CandidateFactor
	if factor <= 0 {
		factor = 4
	}
	n := factor * k

	lexicalWeight := policy.LexicalWeight
	if queryText == "" {
		lexicalWeight = 0
	}

	dense, err := r.store.SearchDense(ctx, sessionID, q, n)
	if err != nil {
		return nil, err
	}

	var lexical []*store.Candidate
	if lexicalWeight > 0 {
		lexical, err = r.store.SearchLexical(ctx, sessionID, queryText, n)
		if err != nil {
			return nil, err
		}
	}

	merged := mergeCandidates(dense, lexical)
	merged = dedupeCovered(merged)

	now := time.Now()
	scored := make([]ScoredMemory, 0, len(merged))
	for _, c := range merged {
		cos := float64(embeddings.Cosine(q, c.Embedding))
		if math.IsNaN(cos) {
			r.logger.Warn("dropping candidate with NaN similarity",
				zap.String("kind", c.Kind), zap.Int64("ref_id", c.RefID))
			continue
		}

		tau := policy.TimeDecayHours
		if tau <= 0 {
			tau = 1
		}
		ageHours := now.Sub(c.CreatedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}

		score := policy.SemanticWeight*cos +
			lexicalWeight*c.Lexical +
			policy.ImportanceTerm*(float64(c.Importance)/10.0)*policy.ImportanceWeight -
			policy.TimeWeight*ageHours/tau

		scored = append(scored, ScoredMemory{Candidate: c, Score: score})
	}

	// Score descending; ties go to the newer row, then the larger id.
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Candidate.CreatedAt.Equal(b.Candidate.CreatedAt) {
			return a.Candidate.CreatedAt.After(b.Candidate.CreatedAt)
		}
		return a.Candidate.RefID > b.Candidate.RefID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// mergeCandidates unions the dense and lexical candidate sets by
// (kind, ref_id), keeping the lexical score where one exists.
func mergeCandidates(dense, lexical []*store.Candidate) []*store.Candidate {
	type key struct {
		kind string
		id   int64
	}
	seen := make(map[key]*store.Candidate, len(dense)+len(lexical))
	var out []*store.Candidate

	for _, c := range dense {
		seen[key{c.Kind, c.RefID}] = c
		out = append(out, c)
	}
	for _, c := range lexical {
		k := key{c.Kind, c.RefID}
		if existing, ok := seen[k]; ok {
			if c.Lexical > existing.Lexical {
				existing.Lexical = c.Lexical
			}
			continue
		}
		seen[k] = c
		out = append(out, c)
	}
	return out
}

// dedupeCovered drops event candidates whose id falls inside a candidate
// chunk's covered range: the chunk speaks for them.
func dedupeCovered(candidates []*store.Candidate) []*store.Candidate {
	type span struct{ first, last int64 }
	var spans []span
	for _, c := range candidates {
		if c.Kind == "chunk" {
			spans = append(spans, span{c.FirstEventID, c.LastEventID})
		}
	}
	if len(spans) == 0 {
		return candidates
	}

	out := candidates[:0]
	for _, c := range candidates {
		if c.Kind == "event" {
			covered := false
			for _, s := range spans {
				if c.RefID >= s.first && c.RefID <= s.last {
					covered = true
					break
				}
			}
			if covered {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
