// Package kit is the public facade of the loom runtime: construction,
// agent registration, and the chat entry points that drive the per-turn
// pipeline.
package kit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/agent"
	"github.com/loomcomputeco/loom/pkg/agent/builtin"
	"github.com/loomcomputeco/loom/pkg/embeddings"
	"github.com/loomcomputeco/loom/pkg/eventstream"
	"github.com/loomcomputeco/loom/pkg/eventstream/nop"
	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/memory"
	"github.com/loomcomputeco/loom/pkg/model"
	"github.com/loomcomputeco/loom/pkg/store"
	"github.com/loomcomputeco/loom/pkg/worker"
)

// Config assembles a Kit. Handle and Embedder are required capabilities;
// everything else has working defaults.
type Config struct {
	// Handle is the model capability owned by the scheduler.
	Handle model.Handle

	// Embedder is the dense-embedding capability.
	Embedder embeddings.Embedder

	// Store configures the persistence layer. Dimensions is filled from
	// the embedder when zero.
	Store store.Config

	// Scheduler tunes the inference queue.
	Scheduler model.SchedulerConfig

	// Workers tunes the background pool.
	Workers worker.Config

	// ErrorHandling tunes retries and the circuit breaker. Zero value
	// selects fault.DefaultHandlerConfig().
	ErrorHandling fault.HandlerConfig

	// Publisher receives turn-persisted events. Nil selects the nop
	// publisher.
	Publisher eventstream.Publisher

	// Agents are registered at build time, before the builtins; a builtin
	// whose name is already taken by one of these is not registered.
	Agents []agent.Config

	// SkipBuiltins leaves out the stock chat/extractor/summarizer agents.
	SkipBuiltins bool

	// User labels implicitly created sessions.
	User string

	// Summarizer tunes the background summarization job.
	Summarizer memory.SummarizerConfig

	// Logger is the shared logger. Nil selects zap.NewNop().
	Logger *zap.Logger
}

// Kit is the runtime facade. It exclusively owns the registry, the
// scheduler, the store handle and the error handler; agents share the
// scheduler and store through it.
type Kit struct {
	registry   *agent.Registry
	scheduler  *model.Scheduler
	store      *store.Store
	embedder   embeddings.Embedder
	retriever  *memory.Retriever
	graph      *memory.Graph
	writer     *memory.Writer
	summarizer *memory.Summarizer
	pool       *worker.Pool
	faults     *fault.Handler
	publisher  eventstream.Publisher
	logger     *zap.Logger
	user       string

	promptObserver func(agentName, prompt string)
}

// Option customizes a Kit at build time.
type Option func(*Kit)

// WithPromptObserver installs a hook receiving every assembled prompt.
// Test hook; also useful for prompt debugging.
func WithPromptObserver(fn func(agentName, prompt string)) Option {
	return func(k *Kit) { k.promptObserver = fn }
}

// Build constructs the facade: opens the store, starts the scheduler and
// the background pool, and registers the builtin plus configured agents.
func Build(cfg Config, opts ...Option) (*Kit, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Handle == nil {
		return nil, fault.New(fault.KindInvalidInput, "model handle is required")
	}
	if cfg.Embedder == nil {
		return nil, fault.New(fault.KindInvalidInput, "embedder is required")
	}

	if cfg.Store.Dimensions == 0 {
		cfg.Store.Dimensions = cfg.Embedder.Dim()
	}
	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	scheduler, err := model.NewScheduler(cfg.Handle, cfg.Scheduler, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	handlerCfg := cfg.ErrorHandling
	if handlerCfg == (fault.HandlerConfig{}) {
		handlerCfg = fault.DefaultHandlerConfig()
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	cfg.Workers.Logger = logger

	k := &Kit{
		registry:  agent.NewRegistry(),
		scheduler: scheduler,
		store:     st,
		embedder:  cfg.Embedder,
		retriever: memory.NewRetriever(st, cfg.Embedder, logger),
		pool:      worker.NewPool(cfg.Workers),
		faults:    fault.NewHandler(handlerCfg, logger),
		publisher: publisher,
		logger:    logger,
		user:      cfg.User,
	}
	k.graph = memory.NewGraph(st, logger)
	k.writer = memory.NewWriter(st, cfg.Embedder, k.graph, logger)
	k.summarizer = memory.NewSummarizer(st, cfg.Embedder, k.invokeSummarizer, cfg.Summarizer, logger)

	for _, opt := range opts {
		opt(k)
	}

	// Configured agents win over builtins of the same name.
	for _, agentCfg := range cfg.Agents {
		if _, err := k.registry.Register(agentCfg); err != nil {
			k.Close()
			return nil, err
		}
	}
	if !cfg.SkipBuiltins {
		for _, builtinCfg := range []agent.Config{builtin.Chat(), builtin.MemoryExtractor(), builtin.Summarizer()} {
			if _, exists := k.registry.GetOK(builtinCfg.Name); exists {
				continue
			}
			if _, err := k.registry.Register(builtinCfg); err != nil {
				k.Close()
				return nil, err
			}
		}
	}

	logger.Info("kit ready", zap.Strings("agents", k.registry.Names()))
	return k, nil
}

// RegisterAgent adds an agent after construction.
func (k *Kit) RegisterAgent(cfg agent.Config) error {
	_, err := k.registry.Register(cfg)
	return err
}

// ListAgents returns the registered agent names, sorted.
func (k *Kit) ListAgents() []string {
	return k.registry.Names()
}

// DatabaseHandle exposes the store for session and event inspection.
func (k *Kit) DatabaseHandle() *store.Store {
	return k.store
}

// Chat runs a full turn against the named agent: retrieval, assembly,
// decode, history update, and background persistence.
func (k *Kit) Chat(ctx context.Context, agentName, input string) (string, error) {
	return k.chat(ctx, agentName, input, chatOptions{useMemory: true, persist: true, touchHistory: true})
}

// ChatWithNick is the shortcut binding to the "chat" agent with a per-turn
// nick override.
func (k *Kit) ChatWithNick(ctx context.Context, input, nick string) (string, error) {
	return k.chat(ctx, builtin.ChatAgentName, input, chatOptions{
		useMemory:    true,
		persist:      true,
		touchHistory: true,
		nick:         nick,
	})
}

// ChatNoMemory runs a turn without retrieval or persistence. Short-term
// history is still consulted and updated, giving dialogue continuity
// without touching the store.
func (k *Kit) ChatNoMemory(ctx context.Context, agentName, input string) (string, error) {
	return k.chat(ctx, agentName, input, chatOptions{touchHistory: true})
}

// ChatNoMemoryWithOptions is ChatNoMemory with per-call grammar and stop
// overrides. History is neither consulted nor updated: callers use this
// for internal structured turns.
func (k *Kit) ChatNoMemoryWithOptions(ctx context.Context, agentName, input, grammarSchema string, stops []string) (string, error) {
	return k.chat(ctx, agentName, input, chatOptions{
		grammarOverride: grammarSchema,
		stopsOverride:   stops,
	})
}

// Close drains background work and releases the scheduler and store.
func (k *Kit) Close() error {
	k.pool.Close()
	k.scheduler.Close()
	k.publisher.Close()
	return k.store.Close()
}

// ensureSession returns the active session, creating one when none exists.
func (k *Kit) ensureSession(ctx context.Context) (*store.Session, error) {
	session, err := k.store.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	user := k.user
	if user == "" {
		user = "default"
	}
	session, err = k.store.CreateSession(ctx, user, true)
	if err != nil {
		return nil, err
	}
	k.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("user", user),
	)
	return session, nil
}

// backgroundTimeout bounds one background extraction or summarization job.
const backgroundTimeout = 5 * time.Minute
