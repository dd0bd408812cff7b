package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadFrom(t *testing.T, yaml string, env map[string]string) (*Config, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	for k, v := range env {
		t.Setenv(k, v)
	}
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFrom(t, "", map[string]string{
		"DATABASE_URL": "postgres://localhost/pipeline",
		"REDIS_URL":    "redis://localhost:6379",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.PollInterval() != 300*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
	if cfg.MaxDeliveryAttempts != 5 {
		t.Errorf("MaxDeliveryAttempts = %d", cfg.MaxDeliveryAttempts)
	}
	if cfg.BackoffBase() != time.Second || cfg.BackoffMax() != 60*time.Second {
		t.Errorf("backoff = %v..%v", cfg.BackoffBase(), cfg.BackoffMax())
	}
	if cfg.DataBucket != "data" || cfg.ResultsBucket != "results" {
		t.Errorf("buckets = %q, %q", cfg.DataBucket, cfg.ResultsBucket)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	yaml := `
port: "9000"
databaseURL: postgres://yaml/db
redisURL: redis://yaml:6379
pollIntervalSeconds: 60
maxDeliveryAttempts: 7
`
	cfg, err := loadFrom(t, yaml, map[string]string{
		"PORT": "9001", // env wins over YAML
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9001" {
		t.Errorf("Port = %q, want env override 9001", cfg.Port)
	}
	if cfg.PollIntervalSeconds != 60 {
		t.Errorf("PollIntervalSeconds = %d, want YAML value 60", cfg.PollIntervalSeconds)
	}
	if cfg.MaxDeliveryAttempts != 7 {
		t.Errorf("MaxDeliveryAttempts = %d", cfg.MaxDeliveryAttempts)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing database url", "redisURL: redis://localhost:6379\n"},
		{"missing redis url", "databaseURL: postgres://localhost/db\n"},
		{"zero attempts", "databaseURL: p\nredisURL: r\nmaxDeliveryAttempts: 0\n"},
		{"multiplier below one", "databaseURL: p\nredisURL: r\nbackoffMultiplier: 0.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadFrom(t, tt.yaml, nil); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestAllSubscribersMergesLists(t *testing.T) {
	yaml := `
databaseURL: postgres://localhost/db
redisURL: redis://localhost:6379
subscribers:
  - name: primary
    endpoint: http://a.example/hook
    secret: s1
subscriberEndpoints:
  - http://b.example/hook
`
	cfg, err := loadFrom(t, yaml, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	subs := cfg.AllSubscribers()
	if len(subs) != 2 {
		t.Fatalf("got %d subscribers, want 2", len(subs))
	}
	if subs[0].Name != "primary" || subs[0].Secret != "s1" {
		t.Errorf("named subscriber = %+v", subs[0])
	}
	if subs[1].Name != "subscriber-1" || subs[1].Endpoint != "http://b.example/hook" {
		t.Errorf("generated subscriber = %+v", subs[1])
	}
}
