// Package config loads the engine's YAML configuration file, the same way
// the reference engine's cmd/server and cmd/studio entrypoints load their
// settings via gopkg.in/yaml.v3 before wiring up storage.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quill-run/minidb/internal/buffer"
)

// Config is the top-level engine configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	BufferPool BufferPoolConfig `yaml:"buffer_pool"`
	Logging    LoggingConfig    `yaml:"logging"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Crypt      CryptConfig      `yaml:"crypt"`
	Admin      AdminConfig      `yaml:"admin"`
}

// BufferPoolConfig controls the buffer pool's frame count and replacement
// policy.
type BufferPoolConfig struct {
	PoolSize int           `yaml:"pool_size"`
	Replacer buffer.Policy `yaml:"replacer"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	WithCaller bool   `yaml:"with_caller"`
}

// CheckpointConfig controls the background checkpoint scheduler.
type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // robfig/cron/v3 schedule expression
}

// CryptConfig controls optional at-rest page encryption.
type CryptConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PassphraseFile string `yaml:"passphrase_file"`
}

// AdminConfig controls the read-only gRPC introspection surface.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns sane defaults for running the engine with no config file.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		BufferPool: BufferPoolConfig{
			PoolSize: 128,
			Replacer: buffer.PolicyLRU,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Cron:    "@every 30s",
		},
		Crypt: CryptConfig{
			Enabled: false,
		},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}

// Load reads and parses a YAML config file, filling any field the file
// leaves zero-valued with Default()'s value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse %q: %w", path, err)
	}
	if cfg.BufferPool.PoolSize <= 0 {
		cfg.BufferPool.PoolSize = Default().BufferPool.PoolSize
	}
	if cfg.BufferPool.Replacer == "" {
		cfg.BufferPool.Replacer = Default().BufferPool.Replacer
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = Default().Logging.Level
	}
	if cfg.Checkpoint.Cron == "" {
		cfg.Checkpoint.Cron = Default().Checkpoint.Cron
	}
	return cfg, nil
}
