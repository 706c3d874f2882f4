// Package config loads the corpusd service configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the full service configuration.
type AppConfig struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Server    ServerConfig    `yaml:"server"`
}

// StorageConfig configures the staging store.
type StorageConfig struct {
	// Path is the BadgerDB directory. Empty with InMemory unset is invalid.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// EmbeddingConfig configures the embedding client.
type EmbeddingConfig struct {
	Host       string `yaml:"host"`
	Token      string `yaml:"token"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// VectorConfig configures the vector store client.
type VectorConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// SchedulerConfig configures the embedding scheduler.
type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	PoolSize   int           `yaml:"pool_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// GatewayConfig configures the search gateway.
type GatewayConfig struct {
	FusionConstant int           `yaml:"fusion_constant"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`
	CacheSize      int           `yaml:"cache_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is supplied.
func Default() *AppConfig {
	return &AppConfig{
		Storage: StorageConfig{
			Path: "./data/staging",
		},
		Embedding: EmbeddingConfig{
			Host:       "http://localhost:11434/v1",
			Token:      "none",
			Model:      "mxbai-embed-large",
			Dimensions: 1024,
			BatchSize:  32,
		},
		Vector: VectorConfig{
			URL: "http://localhost:6333",
		},
		Scheduler: SchedulerConfig{
			Interval:   15 * time.Second,
			BatchSize:  32,
			PoolSize:   0, // 0 lets the scheduler pick from CPU count
			MaxRetries: 5,
		},
		Gateway: GatewayConfig{
			FusionConstant: 60,
			BackendTimeout: 3 * time.Second,
			CacheSize:      256,
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file keep
// their default values. Environment variables override secrets afterwards:
// CORPUS_EMBEDDING_TOKEN and CORPUS_QDRANT_API_KEY.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if token := os.Getenv("CORPUS_EMBEDDING_TOKEN"); token != "" {
		cfg.Embedding.Token = token
	}
	if key := os.Getenv("CORPUS_QDRANT_API_KEY"); key != "" {
		cfg.Vector.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for impossible values.
func (c *AppConfig) Validate() error {
	if c.Storage.Path == "" && !c.Storage.InMemory {
		return fmt.Errorf("config: storage.path is required unless storage.in_memory is set")
	}
	if c.Embedding.Host == "" {
		return fmt.Errorf("config: embedding.host is required")
	}
	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("config: embedding.dimensions must be positive")
	}
	if c.Vector.URL == "" {
		return fmt.Errorf("config: vector.url is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: scheduler.interval must be positive")
	}
	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("config: scheduler.batch_size must be positive")
	}
	if c.Gateway.FusionConstant < 1 {
		return fmt.Errorf("config: gateway.fusion_constant must be positive")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("config: server.listen is required")
	}
	return nil
}
