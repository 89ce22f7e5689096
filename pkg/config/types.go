// Package config loads the runtime configuration from loom.toml, LOOM_*
// environment variables and defaults, in that precedence order.
package config

// Config is the full runtime configuration.
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Events    EventsConfig    `mapstructure:"events"`
	Agents    []AgentConfig   `mapstructure:"agents"`
	Debug     bool            `mapstructure:"debug"`
}

// ModelConfig holds model-handle settings.
type ModelConfig struct {
	ModelPath      string `mapstructure:"model_path"`
	TokenizerPath  string `mapstructure:"tokenizer_path"`
	Precision      string `mapstructure:"precision"` // "fp16" or "fp32"
	QuantLayers    int    `mapstructure:"quant_layers"`
	QuantType      string `mapstructure:"quant_type"`
	TokenChunkSize int    `mapstructure:"token_chunk_size"`
	MaxBatch       int    `mapstructure:"max_batch"`
	EmbedDevice    string `mapstructure:"embed_device"` // "cpu" or "gpu"
	Adapter        string `mapstructure:"adapter"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path            string `mapstructure:"path"`
	MaxConnections  int    `mapstructure:"max_connections"`
	ConnectTimeoutS int    `mapstructure:"connect_timeout_s"`
	EnableWAL       bool   `mapstructure:"enable_wal"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// EmbeddingConfig holds embedder provider settings.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // "ollama" or "hash"
	Target     string `mapstructure:"target"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// SchedulerConfig holds inference queue settings.
type SchedulerConfig struct {
	QueueDepth            int `mapstructure:"queue_depth"`
	MaxConcurrentPerAgent int `mapstructure:"max_concurrent_per_agent"`
	StateLRUCapacity      int `mapstructure:"state_lru_capacity"`
	DefaultDeadlineMs     int `mapstructure:"default_deadline_ms"`
}

// EventsConfig holds eventstream settings.
type EventsConfig struct {
	Provider string   `mapstructure:"provider"` // "nop" or "kafka"
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
}

// AgentConfig is one agent's declarative registration.
type AgentConfig struct {
	Name              string            `mapstructure:"name"`
	PromptTemplate    string            `mapstructure:"prompt_template"`
	Nick              string            `mapstructure:"nick"`
	Decoding          DecodingConfig    `mapstructure:"decoding"`
	StopSequences     []string          `mapstructure:"stop_sequences"`
	Grammar           string            `mapstructure:"grammar"`
	StateID           string            `mapstructure:"state_id"`
	SaveConversations bool              `mapstructure:"save_conversations"`
	Memory            AgentMemoryConfig `mapstructure:"memory"`
}

// DecodingConfig holds sampling parameters.
type DecodingConfig struct {
	MaxTokens        int     `mapstructure:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature"`
	TopP             float64 `mapstructure:"top_p"`
	PresencePenalty  float64 `mapstructure:"presence_penalty"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty"`
}

// AgentMemoryConfig holds one agent's memory discipline.
type AgentMemoryConfig struct {
	Enabled                bool    `mapstructure:"enabled"`
	TopK                   int     `mapstructure:"top_k"`
	TimeDecayHours         float64 `mapstructure:"time_decay_hours"`
	ImportanceWeight       float64 `mapstructure:"importance_weight"`
	MaxContextChars        int     `mapstructure:"max_context_chars"`
	SemanticChunkThreshold int     `mapstructure:"semantic_chunk_threshold"`
	CooccurDivisor         float64 `mapstructure:"cooccur_divisor"`
	MinEdgeWeight          float64 `mapstructure:"min_edge_weight"`
	MaxEdgeWeight          float64 `mapstructure:"max_edge_weight"`
	WeightAccumulation     bool    `mapstructure:"weight_accumulation"`
}
