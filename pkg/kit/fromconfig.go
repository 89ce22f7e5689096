package kit

import (
	"time"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/agent"
	"github.com/loomcomputeco/loom/pkg/config"
	embeddingutils "github.com/loomcomputeco/loom/pkg/embeddings/utils"
	"github.com/loomcomputeco/loom/pkg/eventstream"
	kafkastream "github.com/loomcomputeco/loom/pkg/eventstream/kafka"
	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/memory"
	"github.com/loomcomputeco/loom/pkg/model"
	"github.com/loomcomputeco/loom/pkg/store"
)

// BuildFromConfig assembles a Kit from a loaded configuration plus the one
// capability configuration cannot provide: the model handle. The embedder,
// store, scheduler tuning, eventstream publisher and declared agents all
// come from cfg.
func BuildFromConfig(cfg *config.Config, handle model.Handle, logger *zap.Logger, opts ...Option) (*Kit, error) {
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "configuring embedder")
	}

	var publisher eventstream.Publisher
	if cfg.Events.Provider == "kafka" {
		publisher, err = kafkastream.NewPublisher(kafkastream.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		})
		if err != nil {
			return nil, fault.Wrap(fault.KindInvalidInput, err, "configuring kafka publisher")
		}
	}

	agents := make([]agent.Config, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		agents = append(agents, agentFromConfig(ac))
	}

	return Build(Config{
		Handle:   handle,
		Embedder: embedder,
		Store: store.Config{
			Path:           cfg.Store.Path,
			Dimensions:     cfg.Embedding.Dimensions,
			MaxConnections: cfg.Store.MaxConnections,
			ConnectTimeout: time.Duration(cfg.Store.ConnectTimeoutS) * time.Second,
			EnableWAL:      cfg.Store.EnableWAL,
			AutoMigrate:    cfg.Store.AutoMigrate,
		},
		Scheduler: model.SchedulerConfig{
			QueueDepth:            cfg.Scheduler.QueueDepth,
			MaxConcurrentPerAgent: cfg.Scheduler.MaxConcurrentPerAgent,
			StateLRUCapacity:      cfg.Scheduler.StateLRUCapacity,
			DefaultDeadline:       time.Duration(cfg.Scheduler.DefaultDeadlineMs) * time.Millisecond,
		},
		Publisher: publisher,
		Agents:    agents,
		Logger:    logger,
	}, opts...)
}

// agentFromConfig maps one declarative agent table onto a runtime config.
// Omitted decoding or memory fields inherit the runtime defaults.
func agentFromConfig(ac config.AgentConfig) agent.Config {
	decoding := model.Params{
		MaxTokens:        ac.Decoding.MaxTokens,
		Temperature:      ac.Decoding.Temperature,
		TopP:             ac.Decoding.TopP,
		PresencePenalty:  ac.Decoding.PresencePenalty,
		FrequencyPenalty: ac.Decoding.FrequencyPenalty,
	}

	policy := memory.DefaultPolicy()
	policy.Enabled = ac.Memory.Enabled
	if ac.Memory.TopK > 0 {
		policy.TopK = ac.Memory.TopK
	}
	if ac.Memory.TimeDecayHours > 0 {
		policy.TimeDecayHours = ac.Memory.TimeDecayHours
	}
	if ac.Memory.ImportanceWeight > 0 {
		policy.ImportanceWeight = ac.Memory.ImportanceWeight
	}
	if ac.Memory.MaxContextChars > 0 {
		policy.MaxContextChars = ac.Memory.MaxContextChars
	}
	if ac.Memory.SemanticChunkThreshold > 0 {
		policy.SemanticChunkThreshold = ac.Memory.SemanticChunkThreshold
	}
	if ac.Memory.CooccurDivisor > 0 {
		policy.CooccurDivisor = ac.Memory.CooccurDivisor
	}
	if ac.Memory.MaxEdgeWeight > 0 {
		policy.MinEdgeWeight = ac.Memory.MinEdgeWeight
		policy.MaxEdgeWeight = ac.Memory.MaxEdgeWeight
	}
	policy.WeightAccumulation = ac.Memory.WeightAccumulation

	return agent.Config{
		Name:              ac.Name,
		Preface:           ac.PromptTemplate,
		Nick:              ac.Nick,
		Decoding:          decoding,
		Grammar:           ac.Grammar,
		Stops:             ac.StopSequences,
		StateID:           ac.StateID,
		SaveConversations: ac.SaveConversations,
		Memory:            policy,
	}
}
