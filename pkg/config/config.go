package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all Forge configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Models      ModelsConfig      `yaml:"models"`
	Inference   InferenceConfig   `yaml:"inference"`
	Cache       CacheConfig       `yaml:"cache"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Performance PerformanceConfig `yaml:"performance"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// ModelsConfig defines where models live and which one starts active.
type ModelsConfig struct {
	Default      string        `yaml:"default"`
	CacheDir     string        `yaml:"cache_dir"`
	AutoDownload bool          `yaml:"auto_download"`
	HubURL       string        `yaml:"hub_url"`
	Available    []ModelConfig `yaml:"available"`
}

// ModelConfig describes a model that may be switched to.
type ModelConfig struct {
	Name string `yaml:"name"`
	Task string `yaml:"task"`
	Repo string `yaml:"repo"`
}

// InferenceConfig sizes the batch dispatcher and the input pipeline.
type InferenceConfig struct {
	BatchSize     int `yaml:"batch_size"`
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxLength     int `yaml:"max_length"`
	Dimensions    int `yaml:"dimensions"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// MonitoringConfig controls logging and metrics exposure.
type MonitoringConfig struct {
	LogLevel      int  `yaml:"log_level"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// PerformanceConfig controls benchmarking.
type PerformanceConfig struct {
	EnableBenchmarking bool   `yaml:"enable_benchmarking"`
	HistoryDB          string `yaml:"history_db"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Models: ModelsConfig{
			Default:  "bert-base-uncased",
			CacheDir: "models",
			HubURL:   "https://huggingface.co",
		},
		Inference: InferenceConfig{
			BatchSize:     32,
			MaxConcurrent: 4,
			MaxLength:     512,
			Dimensions:    64,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        time.Hour,
			MaxEntries: 1000,
		},
		Monitoring: MonitoringConfig{
			EnableMetrics: true,
		},
		Performance: PerformanceConfig{
			HistoryDB: "forge.db",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the dispatcher and cache cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Inference.BatchSize <= 0:
		return fmt.Errorf("%w: inference.batch_size must be positive", ErrInvalid)
	case c.Inference.MaxConcurrent <= 0:
		return fmt.Errorf("%w: inference.max_concurrent must be positive", ErrInvalid)
	case c.Inference.Dimensions <= 0:
		return fmt.Errorf("%w: inference.dimensions must be positive", ErrInvalid)
	case c.Cache.Enabled && c.Cache.MaxEntries <= 0:
		return fmt.Errorf("%w: cache.max_entries must be positive", ErrInvalid)
	case c.Cache.Enabled && c.Cache.TTL <= 0:
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalid)
	}
	return nil
}
