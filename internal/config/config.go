// Package config loads litesync's settings the way codetrek-syntrix does:
// built-in defaults, then config/config.yml, then config/config.local.yml
// (for untracked per-developer overrides), then environment variables,
// each layer only overriding fields it actually sets.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree for a litesync process.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
	Replication ReplicationConfig `yaml:"replication"`
}

// StorageConfig locates the local SQLite-backed revision store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	DatabaseName string `yaml:"database_name"`
}

// ServerConfig configures the websocket listener a peer dials into.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ReplicationConfig holds the replication knobs the sync command copies
// into model.Options; model.Options.WithDefaults then fills any that are
// still zero with its own built-in values.
type ReplicationConfig struct {
	InsertBatchHighWater  int   `yaml:"insert_batch_high_water"`
	InsertBatchIntervalMS int64 `yaml:"insert_batch_interval_ms"`
	ChangesBatchSize      int   `yaml:"changes_batch_size"`
	ProtocolVersion       int   `yaml:"protocol_version"`
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DatabasePath: "./data/litesync.db",
			DatabaseName: "litesync",
		},
		Server: ServerConfig{
			Port: 4984,
		},
		Replication: ReplicationConfig{
			InsertBatchHighWater:  100,
			InsertBatchIntervalMS: 500,
			ChangesBatchSize:      200,
			ProtocolVersion:       1,
		},
	}
}

// LoadConfig builds a Config by layering, in order: built-in defaults,
// config/config.yml, config/config.local.yml, then environment variable
// overrides. Each layer is optional; a missing file is not an error.
func LoadConfig() Config {
	cfg := defaults()

	mergeFile(&cfg, "config/config.yml")
	mergeFile(&cfg, "config/config.local.yml")
	mergeEnv(&cfg)

	return cfg
}

func mergeFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = yaml.Unmarshal(data, cfg)
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Storage.DatabaseName = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("INSERT_BATCH_HIGH_WATER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Replication.InsertBatchHighWater = n
		}
	}
	if v := os.Getenv("INSERT_BATCH_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Replication.InsertBatchIntervalMS = n
		}
	}
	if v := os.Getenv("CHANGES_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Replication.ChangesBatchSize = n
		}
	}
}
