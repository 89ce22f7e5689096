// Package modeltest provides a scripted model.Handle for tests.
package modeltest

import (
	"context"
	"sync"
	"time"

	"github.com/loomcomputeco/loom/pkg/model"
)

// Handle is a scripted fake model. The Script callback maps a prompt to the
// full reply text, which is then streamed to the scheduler in TokenSize
// chunks with an optional per-token Delay (for cancellation tests).
type Handle struct {
	// Script produces the reply for a prompt. Defaults to echoing "ok".
	Script func(prompt string) string

	// TokenSize is the chunk length per emitted token. Default 4 bytes.
	TokenSize int

	// Delay is slept before each token.
	Delay time.Duration

	// Err, when set, is returned from the next Generate calls.
	Err error

	mu      sync.Mutex
	prompts []string
	states  []string
	inFly   int
	maxFly  int
}

// Generate streams the scripted reply token by token.
func (h *Handle) Generate(ctx context.Context, req model.GenerateRequest, emit func(token string) bool) error {
	h.mu.Lock()
	h.prompts = append(h.prompts, req.Prompt)
	h.inFly++
	if h.inFly > h.maxFly {
		h.maxFly = h.inFly
	}
	err := h.Err
	script := h.Script
	size := h.TokenSize
	delay := h.Delay
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.inFly--
		h.mu.Unlock()
	}()

	if err != nil {
		return err
	}

	reply := "ok"
	if script != nil {
		reply = script(req.Prompt)
	}
	if size <= 0 {
		size = 4
	}

	for i := 0; i < len(reply); i += size {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}
		end := i + size
		if end > len(reply) {
			end = len(reply)
		}
		if !emit(reply[i:end]) {
			return nil
		}
	}
	return nil
}

// LoadState records the request and returns the id itself as the snapshot.
func (h *Handle) LoadState(_ context.Context, id string) (model.State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, id)
	return id, nil
}

// Close is a no-op.
func (h *Handle) Close() error { return nil }

// Prompts returns the prompts seen so far.
func (h *Handle) Prompts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.prompts...)
}

// LoadedStates returns the state ids loaded so far.
func (h *Handle) LoadedStates() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.states...)
}

// MaxInFlight returns the highest number of concurrent Generate calls
// observed, which the scheduler contract requires to stay at 1.
func (h *Handle) MaxInFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxFly
}

var _ model.Handle = (*Handle)(nil)
