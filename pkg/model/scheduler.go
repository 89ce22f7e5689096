package model

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/grammar"
)

// Priority orders queued requests. High jumps the queue but never preempts
// the decode already running.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Request is one inference submission.
type Request struct {
	// Agent names the submitting agent, used for the per-agent cap.
	Agent string

	// Prompt is the assembled prompt.
	Prompt string

	// Params are the decoding parameters. Zero MaxTokens falls back to
	// DefaultParams().MaxTokens.
	Params Params

	// Grammar, when set, constrains output to the compiled schema.
	Grammar *grammar.Grammar

	// Stops are stop sequences; output is truncated before the first match.
	Stops []string

	// StateID names a conditioning-state snapshot, "" for the base state.
	StateID string

	// Priority selects the queue lane.
	Priority Priority
}

// Result is a completed decode.
type Result struct {
	// Text is the produced output after stop truncation.
	Text string

	// GrammarTerminated is set when the grammar rejected a continuation
	// before the output formed a complete derivation. The text up to the
	// rejection is still returned; callers treat this as a warning.
	GrammarTerminated bool
}

// SchedulerConfig tunes the scheduler.
type SchedulerConfig struct {
	// QueueDepth bounds each priority lane. Default 64.
	QueueDepth int

	// MaxConcurrentPerAgent bounds outstanding requests per agent; excess
	// submissions from the same agent wait their turn. Default 1.
	MaxConcurrentPerAgent int

	// StateLRUCapacity bounds the conditioning-state cache. Default 8.
	StateLRUCapacity int

	// DefaultDeadline applies when the caller's context has none. Zero
	// means no implicit deadline.
	DefaultDeadline time.Duration
}

type schedRequest struct {
	req    Request
	ctx    context.Context
	result chan outcome
}

type outcome struct {
	res Result
	err error
}

// Scheduler serializes all inference onto a single worker goroutine that
// owns the model handle. Requests flow through two bounded FIFO lanes
// (normal and high); completion is signaled exactly once per request via a
// buffered one-shot channel.
type Scheduler struct {
	handle Handle
	config SchedulerConfig
	logger *zap.Logger

	normal chan *schedRequest
	high   chan *schedRequest

	states *lru.Cache[string, State]

	mu     sync.Mutex
	gates  map[string]chan struct{}
	closed bool
	done   chan struct{}
}

// NewScheduler starts the scheduler worker over the given handle.
func NewScheduler(handle Handle, config SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 64
	}
	if config.MaxConcurrentPerAgent <= 0 {
		config.MaxConcurrentPerAgent = 1
	}
	if config.StateLRUCapacity <= 0 {
		config.StateLRUCapacity = 8
	}

	states, err := lru.New[string, State](config.StateLRUCapacity)
	if err != nil {
		return nil, fault.Wrap(fault.KindModelFailed, err, "creating state cache")
	}

	s := &Scheduler{
		handle: handle,
		config: config,
		logger: logger,
		normal: make(chan *schedRequest, config.QueueDepth),
		high:   make(chan *schedRequest, config.QueueDepth),
		states: states,
		gates:  make(map[string]chan struct{}),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s, nil
}

// Submit enqueues the request and blocks until it reaches a terminal state.
// Queue overflow fails fast with Overloaded; deadline expiry and caller
// cancellation stop the decode at the next token boundary and discard
// partial output.
func (s *Scheduler) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Prompt == "" {
		return Result{}, fault.New(fault.KindInvalidInput, "empty prompt")
	}

	if s.config.DefaultDeadline > 0 {
		if _, has := ctx.Deadline(); !has {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.DefaultDeadline)
			defer cancel()
		}
	}

	// Per-agent fairness gate: excess requests from one agent wait here
	// instead of occupying queue slots.
	gate := s.agentGate(req.Agent)
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctxFault(ctx)
	case <-s.done:
		return Result{}, fault.New(fault.KindCancelled, "scheduler closed")
	}
	defer func() { <-gate }()

	sr := &schedRequest{
		req:    req,
		ctx:    ctx,
		result: make(chan outcome, 1),
	}

	lane := s.normal
	if req.Priority == PriorityHigh {
		lane = s.high
	}

	select {
	case lane <- sr:
	default:
		return Result{}, fault.New(fault.KindOverloaded,
			"scheduler queue full (depth %d)", s.config.QueueDepth)
	}

	select {
	case out := <-sr.result:
		return out.res, out.err
	case <-s.done:
		return Result{}, fault.New(fault.KindCancelled, "scheduler closed")
	}
}

// Close stops the worker after the in-flight decode finishes. Queued
// requests are failed with Cancelled.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	return nil
}

func (s *Scheduler) agentGate(agent string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.gates[agent]
	if !ok {
		gate = make(chan struct{}, s.config.MaxConcurrentPerAgent)
		s.gates[agent] = gate
	}
	return gate
}

// worker is the single goroutine owning the model handle. High-priority
// requests drain first; within a lane order is FIFO.
func (s *Scheduler) worker() {
	for {
		// Once closed, take no further work.
		select {
		case <-s.done:
			s.drain()
			return
		default:
		}

		// Prefer the high lane without blocking on it.
		select {
		case sr := <-s.high:
			s.run(sr)
			continue
		default:
		}

		select {
		case sr := <-s.high:
			s.run(sr)
		case sr := <-s.normal:
			s.run(sr)
		case <-s.done:
			s.drain()
			return
		}
	}
}

func (s *Scheduler) drain() {
	for {
		select {
		case sr := <-s.high:
			sr.result <- outcome{err: fault.New(fault.KindCancelled, "scheduler closed")}
		case sr := <-s.normal:
			sr.result <- outcome{err: fault.New(fault.KindCancelled, "scheduler closed")}
		default:
			return
		}
	}
}

// run transitions a request Queued -> Running -> terminal, sending exactly
// one outcome.
func (s *Scheduler) run(sr *schedRequest) {
	if err := sr.ctx.Err(); err != nil {
		sr.result <- outcome{err: ctxFault(sr.ctx)}
		return
	}

	res, err := s.decode(sr.ctx, sr.req)
	sr.result <- outcome{res: res, err: err}
}

func (s *Scheduler) decode(ctx context.Context, req Request) (Result, error) {
	params := req.Params
	if params.MaxTokens <= 0 {
		params.MaxTokens = DefaultParams().MaxTokens
	}

	var state State
	if req.StateID != "" {
		var err error
		state, err = s.loadState(ctx, req.StateID)
		if err != nil {
			return Result{}, err
		}
	}

	var matcher *grammar.Matcher
	if req.Grammar != nil {
		matcher = req.Grammar.NewMatcher()
		if !matcher.Viable() {
			// The grammar admits nothing at all.
			return Result{GrammarTerminated: true}, nil
		}
	}

	var sb strings.Builder
	var grammarDone, grammarTerminated, stopped bool
	var tokens int
	maxStopLen := maxLen(req.Stops)

	emit := func(token string) bool {
		if ctx.Err() != nil {
			return false
		}

		if matcher != nil {
			accepted := matcher.Feed(token)
			sb.WriteString(token[:accepted])
			if matcher.Complete() {
				// Overrun past a complete derivation is a clean stop.
				grammarDone = true
				return false
			}
			if accepted < len(token) {
				grammarTerminated = true
				return false
			}
		} else {
			sb.WriteString(token)
		}

		// Stop sequences are checked against the accumulated tail so
		// matches spanning token boundaries are still caught.
		if len(req.Stops) > 0 {
			text := sb.String()
			window := text
			if over := len(text) - (maxStopLen + len(token)); over > 0 {
				window = text[over:]
			}
			for _, stop := range req.Stops {
				if idx := strings.Index(window, stop); idx >= 0 {
					cut := len(text) - len(window) + idx
					truncated := text[:cut]
					sb.Reset()
					sb.WriteString(truncated)
					stopped = true
					return false
				}
			}
		}

		tokens++
		return tokens < params.MaxTokens
	}

	start := time.Now()
	err := s.handle.Generate(ctx, GenerateRequest{
		Prompt: req.Prompt,
		State:  state,
		Params: params,
	}, emit)

	if cerr := ctx.Err(); cerr != nil && !stopped && !grammarDone && !grammarTerminated {
		// Partial output from a cancelled decode is discarded.
		return Result{}, ctxFault(ctx)
	}
	if err != nil {
		return Result{}, fault.Wrap(fault.KindModelFailed, err, "decode failed for agent %s", req.Agent)
	}

	s.logger.Debug("decode complete",
		zap.String("agent", req.Agent),
		zap.Int("tokens", tokens),
		zap.Bool("grammar_terminated", grammarTerminated),
		zap.Duration("elapsed", time.Since(start)),
	)

	return Result{Text: sb.String(), GrammarTerminated: grammarTerminated}, nil
}

// loadState resolves a conditioning-state snapshot through the LRU,
// falling back to the handle on miss.
func (s *Scheduler) loadState(ctx context.Context, id string) (State, error) {
	if state, ok := s.states.Get(id); ok {
		return state, nil
	}
	state, err := s.handle.LoadState(ctx, id)
	if err != nil {
		return nil, fault.Wrap(fault.KindModelFailed, err, "loading state %q", id)
	}
	s.states.Add(id, state)
	return state, nil
}

func maxLen(strs []string) int {
	max := 0
	for _, s := range strs {
		if len(s) > max {
			max = len(s)
		}
	}
	return max
}

func ctxFault(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fault.Wrap(fault.KindTimedOut, ctx.Err(), "request deadline exceeded")
	}
	return fault.Wrap(fault.KindCancelled, ctx.Err(), "request cancelled")
}
