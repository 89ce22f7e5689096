package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the configuration from loom.toml in configDir (or the current
// directory when empty), layered under LOOM_* environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (LOOM_STORE_PATH, LOOM_SCHEDULER_QUEUE_DEPTH, ...)
//  2. loom.toml file values
//  3. Defaults from NewDefaultConfig()
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("loom")
	v.SetConfigType("toml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	} else {
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers defaults from NewDefaultConfig() using dotted-key
// notation, keeping defaults.go the single source of truth.
func setDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("debug", d.Debug)

	// Model
	v.SetDefault("model.precision", d.Model.Precision)

	// Store
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.max_connections", d.Store.MaxConnections)
	v.SetDefault("store.connect_timeout_s", d.Store.ConnectTimeoutS)
	v.SetDefault("store.enable_wal", d.Store.EnableWAL)
	v.SetDefault("store.auto_migrate", d.Store.AutoMigrate)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Scheduler
	v.SetDefault("scheduler.queue_depth", d.Scheduler.QueueDepth)
	v.SetDefault("scheduler.max_concurrent_per_agent", d.Scheduler.MaxConcurrentPerAgent)
	v.SetDefault("scheduler.state_lru_capacity", d.Scheduler.StateLRUCapacity)
	v.SetDefault("scheduler.default_deadline_ms", d.Scheduler.DefaultDeadlineMs)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
}
