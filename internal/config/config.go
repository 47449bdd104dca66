package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Approval   ApprovalConfig   `yaml:"approval"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	TimeFormat string `yaml:"time_format"`
}

// CheckpointConfig selects and configures the checkpoint backend.
type CheckpointConfig struct {
	Backend string      `yaml:"backend"` // "memory" or "redis"
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds the redis checkpoint store settings. TTLSeconds of
// zero keeps checkpoints forever: a paused run may wait indefinitely.
type RedisConfig struct {
	URL        string `yaml:"url"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// ApprovalConfig holds the risk predicate keyword list.
type ApprovalConfig struct {
	Keywords []string `yaml:"keywords"`
}

// Default returns the configuration used when config.yaml is absent or
// leaves fields unset.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Checkpoint: CheckpointConfig{
			Backend: "memory",
			Redis: RedisConfig{
				URL:       "redis://localhost:6379",
				KeyPrefix: "checkpoint",
			},
		},
		Approval: ApprovalConfig{
			Keywords: []string{"delete", "remove", "critical", "important", "sensitive"},
		},
	}
}

// Load reads config from path and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = def.Log.Output
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = def.Log.TimeFormat
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = def.Checkpoint.Backend
	}
	if cfg.Checkpoint.Redis.URL == "" {
		cfg.Checkpoint.Redis.URL = def.Checkpoint.Redis.URL
	}
	if cfg.Checkpoint.Redis.KeyPrefix == "" {
		cfg.Checkpoint.Redis.KeyPrefix = def.Checkpoint.Redis.KeyPrefix
	}
	if len(cfg.Approval.Keywords) == 0 {
		cfg.Approval.Keywords = def.Approval.Keywords
	}
}
