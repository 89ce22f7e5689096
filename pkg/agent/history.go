package agent

import (
	"sync"

	"github.com/loomcomputeco/loom/pkg/memory"
)

// HistoryDepth is the maximum number of (user, assistant) pairs kept.
const HistoryDepth = 5

// Pair is one completed exchange.
type Pair struct {
	User      string
	Assistant string
}

// History is the agent's short-term ring buffer of recent exchanges. It
// bridges the visibility gap while background persistence is in flight.
// Assistant replies are stored with think spans stripped.
type History struct {
	mu    sync.Mutex
	pairs []Pair
	depth int
}

// NewHistory creates a history bounded to depth pairs.
func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = HistoryDepth
	}
	return &History{depth: depth}
}

// Append records an exchange, evicting the oldest pair beyond the depth.
func (h *History) Append(userInput, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairs = append(h.pairs, Pair{User: userInput, Assistant: memory.StripThink(reply)})
	if len(h.pairs) > h.depth {
		h.pairs = h.pairs[len(h.pairs)-h.depth:]
	}
}

// Pairs returns a copy of the buffered exchanges, oldest first.
func (h *History) Pairs() []Pair {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Pair(nil), h.pairs...)
}

// Len returns the number of buffered pairs.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pairs)
}

// Clear empties the buffer.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairs = nil
}
