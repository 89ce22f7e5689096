package fault

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HandlerConfig tunes retry and circuit-breaker behavior.
type HandlerConfig struct {
	// MaxRetries is the number of retry attempts after the first failure.
	MaxRetries int

	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration

	// BackoffMultiplier scales the delay after each failed attempt.
	BackoffMultiplier float64

	// MaxRetryDelay caps the backoff delay.
	MaxRetryDelay time.Duration

	// BreakerThreshold is the consecutive model-failure count that trips
	// the circuit breaker. Zero disables the breaker.
	BreakerThreshold int

	// BreakerCooldown is how long the breaker stays open before a
	// half-open probe is allowed.
	BreakerCooldown time.Duration
}

// DefaultHandlerConfig mirrors the runtime defaults: 3 retries starting at
// one second with doubling backoff capped at 30s, breaker tripping after 5
// consecutive model failures with a 60s cooldown.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxRetries:        3,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2.0,
		MaxRetryDelay:     30 * time.Second,
		BreakerThreshold:  5,
		BreakerCooldown:   60 * time.Second,
	}
}

// breakerState is the classic three-state circuit breaker.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Handler applies the propagation policy from the error design: bounded
// exponential-backoff retries for transient kinds, and a circuit breaker
// over model failures that short-circuits new work with Overloaded until
// the cooldown expires.
type Handler struct {
	config HandlerConfig
	logger *zap.Logger

	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
}

// NewHandler creates a Handler. A nil logger falls back to zap.NewNop().
func NewHandler(config HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{config: config, logger: logger}
}

// Execute runs op, retrying transient failures with exponential backoff.
// Non-retryable errors and context cancellation return immediately.
func (h *Handler) Execute(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	delay := h.config.RetryDelay
	var err error

	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt >= h.config.MaxRetries {
			return err
		}
		if ctx.Err() != nil {
			return Wrap(KindCancelled, ctx.Err(), "%s aborted during retry", operation)
		}

		h.logger.Warn("retrying after transient failure",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Wrap(KindCancelled, ctx.Err(), "%s aborted during retry", operation)
		}

		delay = time.Duration(float64(delay) * h.config.BackoffMultiplier)
		if delay > h.config.MaxRetryDelay {
			delay = h.config.MaxRetryDelay
		}
	}
}

// Allow reports whether new model work may proceed. While the breaker is
// open, Allow fails with Overloaded until the cooldown expires, at which
// point the breaker turns half-open and admits calls until Record sees the
// next outcome and closes or reopens it.
func (h *Handler) Allow() error {
	if h.config.BreakerThreshold <= 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case breakerClosed, breakerHalfOpen:
		return nil
	case breakerOpen:
		if time.Since(h.lastFailure) >= h.config.BreakerCooldown {
			h.state = breakerHalfOpen
			h.logger.Info("circuit breaker half-open, admitting probe")
			return nil
		}
		return New(KindOverloaded, "circuit breaker open")
	}
	return nil
}

// Record feeds a model-path outcome into the breaker. Only ModelFailed
// errors count as failures; success or any other error resets the count.
func (h *Handler) Record(err error) {
	if h.config.BreakerThreshold <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil && KindOf(err) == KindModelFailed {
		h.failures++
		h.lastFailure = time.Now()
		if h.state == breakerHalfOpen || h.failures >= h.config.BreakerThreshold {
			if h.state != breakerOpen {
				h.logger.Warn("circuit breaker tripped",
					zap.Int("consecutive_failures", h.failures),
				)
			}
			h.state = breakerOpen
		}
		return
	}

	h.failures = 0
	if h.state != breakerClosed {
		h.logger.Info("circuit breaker closed")
	}
	h.state = breakerClosed
}
