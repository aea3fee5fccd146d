package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSchedulerConfigDefaults(t *testing.T) {
	t.Setenv("SCHEDULER_APP", "billing")

	cfg, err := NewSchedulerConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &SchedulerConfig{
		App:          "billing",
		KeyPrefix:    "bull",
		LockPrefix:   "cronrelay-lock",
		Concurrency:  1,
		PollInterval: time.Second,
		LockTTL:      30 * time.Second,
		LockWait:     10 * time.Second,
		CleanSpec:    "@every 10m",
		CleanGrace:   time.Hour,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerConfigRecoverActive(t *testing.T) {
	t.Setenv("SCHEDULER_APP", "billing")
	t.Setenv("SCHEDULER_RECOVER_ACTIVE", "true")

	cfg, err := NewSchedulerConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.RecoverActive {
		t.Error("expected RecoverActive to be set")
	}
}

func TestSchedulerConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing app", env: map[string]string{}},
		{name: "colon in app", env: map[string]string{"SCHEDULER_APP": "a:b"}},
		{name: "colon in prefix", env: map[string]string{"SCHEDULER_APP": "a", "SCHEDULER_KEY_PREFIX": "x:y"}},
		{name: "zero concurrency", env: map[string]string{"SCHEDULER_APP": "a", "SCHEDULER_CONCURRENCY": "0"}},
		{name: "negative lock wait", env: map[string]string{"SCHEDULER_APP": "a", "SCHEDULER_LOCK_WAIT": "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SCHEDULER_APP", "")
			os.Unsetenv("SCHEDULER_APP")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if cfg, err := NewSchedulerConfigFromEnv(); err == nil {
				t.Errorf("expected error, got %+v", cfg)
			}
		})
	}
}

func TestRelayConfig(t *testing.T) {
	t.Setenv("RELAY_MARKER_TTL", "24h")
	t.Setenv("RELAY_CONFIGURE_KEYSPACE_EVENTS", "true")

	cfg, err := NewRelayConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &RelayConfig{
		Channel:                 "cron_task_queue",
		KeyPrefix:               "cron",
		MarkerPrefix:            "app",
		MarkerTTL:               24 * time.Hour,
		ConfigureKeyspaceEvents: true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("RELAY_MARKER_TTL", "-1s")
	if _, err := NewRelayConfigFromEnv(); err == nil {
		t.Errorf("expected error for negative marker ttl")
	}
}

func TestRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := NewRedisConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts := cfg.Options()
	if opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Errorf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
}

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	cfg := &PostgresConfig{
		Host:     "db",
		Port:     "5432",
		Username: "user",
		Password: "p@ss/word",
		Database: "cronrelay",
		SSLMode:  "disable",
	}
	want := "postgres://user:p%40ss%2Fword@db:5432/cronrelay?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("CRONRELAY_TEST_VALUE=loaded\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("CRONRELAY_TEST_VALUE", "")
	os.Unsetenv("CRONRELAY_TEST_VALUE")

	if err := LoadEnv(envFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("CRONRELAY_TEST_VALUE"); got != "loaded" {
		t.Errorf("CRONRELAY_TEST_VALUE = %q, want %q", got, "loaded")
	}

	err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	if !os.IsNotExist(err) {
		t.Errorf("LoadEnv on missing file = %v, want a not-exist error", err)
	}
}
