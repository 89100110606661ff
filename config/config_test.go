package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Address != ":3002" {
		t.Errorf("App.Address = %q, want :3002", cfg.App.Address)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Store.Type = %q, want memory", cfg.Store.Type)
	}
	if cfg.Relay.QueueSize != 1024 {
		t.Errorf("Relay.QueueSize = %d, want 1024", cfg.Relay.QueueSize)
	}
	if cfg.AI.Timeout != time.Minute {
		t.Errorf("AI.Timeout = %v, want 1m", cfg.AI.Timeout)
	}
	if len(cfg.App.AllowedOrigins) != 2 {
		t.Errorf("App.AllowedOrigins = %v", cfg.App.AllowedOrigins)
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	toml := `
[app]
address = ":4000"
log_level = "debug"

[store]
type = "sqlite"
dsn = "file.db"
max_revisions = 7
`
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SPARKPAD_STORE__DSN", "env.db")
	t.Setenv("SPARKPAD_AI__TIMEOUT", "5s")

	cfg, err := Load([]string{"--config", path, "--app.address", ":5000"})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Address != ":5000" {
		t.Errorf("flag should win, App.Address = %q", cfg.App.Address)
	}
	if cfg.App.LogLevel != "debug" {
		t.Errorf("file should override default, App.LogLevel = %q", cfg.App.LogLevel)
	}
	if cfg.Store.Type != "sqlite" || cfg.Store.MaxRevisions != 7 {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.DSN != "env.db" {
		t.Errorf("env should override file, Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.AI.Timeout != 5*time.Second {
		t.Errorf("AI.Timeout = %v, want 5s", cfg.AI.Timeout)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	if _, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}); err == nil {
		t.Error("Load() with a missing config file should fail")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			App:   App{LogLevel: "info"},
			Relay: Relay{QueueSize: 1},
			Store: Store{Type: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown store", func(c *Config) { c.Store.Type = "mongo" }, true},
		{"s3 without bucket", func(c *Config) { c.Store.Type = "s3" }, true},
		{"s3 with bucket", func(c *Config) { c.Store.Type = "s3"; c.Store.Bucket = "b" }, false},
		{"zero queue", func(c *Config) { c.Relay.QueueSize = 0 }, true},
		{"bad log level", func(c *Config) { c.App.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("SPARKPAD_STORE__REDIS_ADDRESS"); got != "store.redis_address" {
		t.Errorf("envKey() = %q", got)
	}
}
