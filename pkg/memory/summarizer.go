package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/embeddings"
	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/store"
)

// InvokeFunc runs one summarizer agent turn: window text in, raw reply out.
// The facade binds this to the scheduler with the summarizer agent's
// grammar, stops and decoding parameters.
type InvokeFunc func(ctx context.Context, window string) (string, error)

// SummarizerConfig tunes the background summarization job.
type SummarizerConfig struct {
	// MaxRetries bounds re-attempts per job. Default 3.
	MaxRetries int

	// RetryDelay is the initial backoff, doubled per attempt. Default 1s.
	RetryDelay time.Duration
}

// Summarizer collapses the rolling window of uncovered events into a
// semantic chunk. At most one job per session runs at a time; a window
// left uncovered by a failed job is retried after the next qualifying
// event.
type Summarizer struct {
	store    *store.Store
	embedder embeddings.Embedder
	invoke   InvokeFunc
	config   SummarizerConfig
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewSummarizer creates a summarizer bound to the given invoke function.
func NewSummarizer(s *store.Store, embedder embeddings.Embedder, invoke InvokeFunc, config SummarizerConfig, logger *zap.Logger) *Summarizer {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		store:    s,
		embedder: embedder,
		invoke:   invoke,
		config:   config,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// ShouldSummarize reports whether the session's uncovered event count has
// reached the threshold and no job is already running for it.
func (s *Summarizer) ShouldSummarize(ctx context.Context, sessionID string, threshold int) (bool, error) {
	if threshold <= 0 {
		return false, nil
	}
	s.mu.Lock()
	running := s.inFlight[sessionID]
	s.mu.Unlock()
	if running {
		return false, nil
	}

	uncovered, err := s.store.UncoveredEvents(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return len(uncovered) >= threshold, nil
}

// Run executes one summarization job for the session, retrying transient
// failures with exponential backoff. Persistent failure leaves the window
// uncovered for a later attempt.
func (s *Summarizer) Run(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if s.inFlight[sessionID] {
		s.mu.Unlock()
		return nil
	}
	s.inFlight[sessionID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, sessionID)
		s.mu.Unlock()
	}()

	delay := s.config.RetryDelay
	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fault.Wrap(fault.KindCancelled, ctx.Err(), "summarization aborted")
			}
			delay *= 2
		}
		if err = s.runOnce(ctx, sessionID); err == nil {
			return nil
		}
		s.logger.Warn("summarization attempt failed",
			zap.String("session_id", sessionID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

func (s *Summarizer) runOnce(ctx context.Context, sessionID string) error {
	window, err := s.store.UncoveredEvents(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(window) == 0 {
		return nil
	}

	reply, err := s.invoke(ctx, RenderWindow(window))
	if err != nil {
		return err
	}

	summary, err := ParseChunkSummary(reply)
	if err != nil {
		return err
	}

	embedding, err := s.embedder.Embed(ctx, summary.Summary)
	if err != nil {
		return fault.Wrap(fault.KindEmbeddingFailed, err, "embedding chunk summary")
	}

	text := summary.Title
	if text == "" {
		text = summary.Summary
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	chunkID, err := tx.InsertChunk(&store.Chunk{
		SessionID:    sessionID,
		Text:         text,
		Summary:      summary.Summary,
		FirstEventID: window[0].ID,
		LastEventID:  window[len(window)-1].ID,
		Importance:   summary.Importance,
		Embedding:    embedding,
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("semantic chunk created",
		zap.String("session_id", sessionID),
		zap.Int64("chunk_id", chunkID),
		zap.Int64("first_event_id", window[0].ID),
		zap.Int64("last_event_id", window[len(window)-1].ID),
	)
	return nil
}

// RenderWindow serializes an event window for the summarizer agent:
// role-tagged lines, oldest first so the newest turn reads last.
func RenderWindow(events []*store.Event) string {
	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "%s: %s\n", e.Role, strings.ReplaceAll(e.Text, "\n", " "))
	}
	return strings.TrimRight(sb.String(), "\n")
}
