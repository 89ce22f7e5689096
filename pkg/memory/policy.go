// Package memory implements the episodic/semantic memory subsystem:
// hybrid retrieval over events and chunks, the entity/relation graph,
// the writer that persists extracted structure, and the background
// summarizer that collapses event windows into semantic chunks.
package memory

import "github.com/loomcomputeco/loom/pkg/store"

// CooccurRelation is the literal relation label for co-occurrence edges.
const CooccurRelation = "co_occurs_with"

// Policy is the per-agent memory discipline: retrieval weights, decay,
// graph-update parameters and the summarization threshold.
type Policy struct {
	// Enabled switches memory retrieval on for an agent.
	Enabled bool

	// TopK is the number of memories injected per turn.
	TopK int

	// TimeDecayHours is τ: hours for the recency contribution to drop by
	// one full unit of weight.
	TimeDecayHours float64

	// ImportanceWeight multiplies the importance contribution.
	ImportanceWeight float64

	// MaxContextChars caps the assembled memory block.
	MaxContextChars int

	// SemanticChunkThreshold is T: uncovered events before summarization.
	SemanticChunkThreshold int

	// CooccurDivisor maps importance to a co-occurrence weight delta.
	CooccurDivisor float64

	// MinEdgeWeight / MaxEdgeWeight clamp edge weights.
	MinEdgeWeight float64
	MaxEdgeWeight float64

	// WeightAccumulation adds deltas to existing edges instead of
	// replacing their weight.
	WeightAccumulation bool

	// Fusion weights for the composite retrieval score.
	SemanticWeight float64 // w_sem
	LexicalWeight  float64 // w_lex
	ImportanceTerm float64 // w_imp
	TimeWeight     float64 // w_time

	// CandidateFactor scales TopK into the dense and lexical candidate
	// fetch sizes (Ndense = Nlex = CandidateFactor * k).
	CandidateFactor int
}

// DefaultPolicy returns the runtime defaults: top-5 retrieval, 24h decay,
// 1.5x importance boost, 2000-char context, summarization after 7 events,
// co-occurrence weights importance/10 clamped to [0.1, 2.0] with
// accumulation on.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:                false,
		TopK:                   5,
		TimeDecayHours:         24.0,
		ImportanceWeight:       1.5,
		MaxContextChars:        2000,
		SemanticChunkThreshold: 7,
		CooccurDivisor:         10.0,
		MinEdgeWeight:          0.1,
		MaxEdgeWeight:          2.0,
		WeightAccumulation:     true,
		SemanticWeight:         1.0,
		LexicalWeight:          0.4,
		ImportanceTerm:         0.3,
		TimeWeight:             0.2,
		CandidateFactor:        4,
	}
}

// EnabledPolicy is DefaultPolicy with retrieval switched on.
func EnabledPolicy() Policy {
	p := DefaultPolicy()
	p.Enabled = true
	return p
}

// ScoredMemory is one retrieved candidate with its composite score.
type ScoredMemory struct {
	Candidate *store.Candidate
	Score     float64
}
