// Package config loads pipeline configuration from an optional YAML file
// with environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SubscriberConfig declares one webhook subscriber endpoint.
type SubscriberConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Secret   string `yaml:"secret"`
}

// Config holds all configuration for the pipeline process.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	RedisURL    string `yaml:"redisURL"`

	PollIntervalSeconds int     `yaml:"pollIntervalSeconds"`
	SourceEndpoint      string  `yaml:"sourceEndpoint"`
	SourceAPIEndpoint   string  `yaml:"sourceAPIEndpoint"`
	SourceAPIObjectKey  string  `yaml:"sourceAPIObjectKey"`
	ObjectStoreEndpoint string  `yaml:"objectStoreEndpoint"`
	DataBucket          string  `yaml:"dataBucket"`
	SourcePrefix        string  `yaml:"sourcePrefix"`
	ResultsBucket       string  `yaml:"resultsBucket"`
	FetchRatePerSecond  float64 `yaml:"fetchRatePerSecond"`

	// Subscribers with per-endpoint names and signing secrets; the flat
	// subscriberEndpoints list is the minimal alternative and is merged in.
	Subscribers         []SubscriberConfig `yaml:"subscribers"`
	SubscriberEndpoints []string           `yaml:"subscriberEndpoints"`

	MaxDeliveryAttempts   int     `yaml:"maxDeliveryAttempts"`
	BackoffBaseMs         int     `yaml:"backoffBaseMs"`
	BackoffMultiplier     float64 `yaml:"backoffMultiplier"`
	BackoffMaxMs          int     `yaml:"backoffMaxMs"`
	DedupRetentionSeconds int     `yaml:"dedupRetentionSeconds"`
	DispatchConcurrency   int     `yaml:"dispatchConcurrency"`
}

// Load reads the YAML file named by CONFIG_PATH (default config.yaml, which
// may be absent), applies defaults, then applies environment overrides.
func Load() (*Config, error) {
	cfg := defaults()

	path := getEnv("CONFIG_PATH", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.SourceEndpoint = getEnv("SOURCE_ENDPOINT", cfg.SourceEndpoint)
	cfg.SourceAPIEndpoint = getEnv("SOURCE_API_ENDPOINT", cfg.SourceAPIEndpoint)
	cfg.PollIntervalSeconds = getEnvInt("POLL_INTERVAL_SECONDS", cfg.PollIntervalSeconds)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:                  "8080",
		PollIntervalSeconds:   300,
		SourceAPIObjectKey:    "datasets/population.json",
		DataBucket:            "data",
		SourcePrefix:          "pub/time.series/pr/",
		ResultsBucket:         "results",
		FetchRatePerSecond:    4,
		MaxDeliveryAttempts:   5,
		BackoffBaseMs:         1000,
		BackoffMultiplier:     2.0,
		BackoffMaxMs:          60000,
		DedupRetentionSeconds: 3600,
		DispatchConcurrency:   4,
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.MaxDeliveryAttempts < 1 {
		return fmt.Errorf("maxDeliveryAttempts must be at least 1")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoffMultiplier must be at least 1")
	}
	if c.DispatchConcurrency < 1 {
		return fmt.Errorf("dispatchConcurrency must be at least 1")
	}
	return nil
}

// AllSubscribers merges the named subscriber list with the flat endpoint
// list. Flat entries get a generated name and no signing secret.
func (c *Config) AllSubscribers() []SubscriberConfig {
	subs := make([]SubscriberConfig, 0, len(c.Subscribers)+len(c.SubscriberEndpoints))
	subs = append(subs, c.Subscribers...)
	for i, url := range c.SubscriberEndpoints {
		subs = append(subs, SubscriberConfig{
			Name:     fmt.Sprintf("subscriber-%d", i+1),
			Endpoint: url,
		})
	}
	return subs
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

func (c *Config) DedupRetention() time.Duration {
	return time.Duration(c.DedupRetentionSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
