package config

const (
	defaultStorePath          = "loom.db"
	defaultStoreConnections   = 10
	defaultConnectTimeoutS    = 5
	defaultEmbeddingProvider  = "hash"
	defaultEmbeddingModel     = "nomic-embed-text"
	defaultEmbeddingDims      = 256
	defaultQueueDepth         = 64
	defaultPerAgent           = 1
	defaultStateLRUCapacity   = 8
	defaultDeadlineMs         = 120000
	defaultPrecision          = "fp16"
	defaultEventsProvider     = "nop"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Precision: defaultPrecision,
		},
		Store: StoreConfig{
			Path:            defaultStorePath,
			MaxConnections:  defaultStoreConnections,
			ConnectTimeoutS: defaultConnectTimeoutS,
			EnableWAL:       true,
			AutoMigrate:     true,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDims,
		},
		Scheduler: SchedulerConfig{
			QueueDepth:            defaultQueueDepth,
			MaxConcurrentPerAgent: defaultPerAgent,
			StateLRUCapacity:      defaultStateLRUCapacity,
			DefaultDeadlineMs:     defaultDeadlineMs,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
		},
	}
}
