package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read into the config.
// Nested keys are separated by a double underscore, e.g.
// SPARKPAD_STORE__TYPE=sqlite sets store.type.
const EnvPrefix = "SPARKPAD_"

type App struct {
	Address           string   `koanf:"address"`
	LogLevel          string   `koanf:"log_level"`
	AllowedOrigins    []string `koanf:"allowed_origins"`
	MaxHTTPBufferSize int64    `koanf:"max_http_buffer_size"`
}

type Relay struct {
	QueueSize int `koanf:"queue_size"`
}

type Store struct {
	Type          string `koanf:"type"`
	Path          string `koanf:"path"`
	DSN           string `koanf:"dsn"`
	Bucket        string `koanf:"bucket"`
	RedisAddress  string `koanf:"redis_address"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	MaxRevisions  int    `koanf:"max_revisions"`
}

type AI struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

type Config struct {
	App   App   `koanf:"app"`
	Relay Relay `koanf:"relay"`
	Store Store `koanf:"store"`
	AI    AI    `koanf:"ai"`
}

var defaults = map[string]interface{}{
	"app.address":              ":3002",
	"app.log_level":            "info",
	"app.allowed_origins":      []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	"app.max_http_buffer_size": 5000000,
	"relay.queue_size":         1024,
	"store.type":               "memory",
	"store.path":               "./data",
	"store.dsn":                "sparkpad.db",
	"store.redis_address":      "localhost:6379",
	"store.redis_db":           0,
	"store.max_revisions":      50,
	"ai.base_url":              "https://api.openai.com/v1",
	"ai.model":                 "gpt-4o-mini",
	"ai.timeout":               "60s",
}

// Load builds the configuration from, in increasing priority: built-in
// defaults, TOML files named by --config, a .env file, SPARKPAD_ environment
// variables and command line flags.
func Load(args []string) (*Config, error) {
	ko := koanf.New(".")

	f := flag.NewFlagSet("sparkpad", flag.ContinueOnError)
	f.StringSlice("config", nil, "Path to one or more TOML config files to load in order")
	f.String("app.address", ":3002", "The address to listen on.")
	f.String("app.log_level", "info", "The log level (debug, info, warn, error).")
	f.String("store.type", "memory", "Storage backend (memory, filesystem, sqlite, s3, redis).")
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	if err := ko.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	files, _ := f.GetStringSlice("config")
	for _, path := range files {
		logrus.WithField("path", path).Info("Reading config file")
		if err := ko.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	if err := ko.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	// Only flags set explicitly override earlier sources.
	if err := ko.Load(posflag.Provider(f, ".", ko), nil); err != nil {
		return nil, fmt.Errorf("loading flags: %w", err)
	}

	var cfg Config
	if err := ko.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "memory", "filesystem", "sqlite", "redis":
	case "s3":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket must be set for s3 storage")
		}
	default:
		return fmt.Errorf("unknown store.type %q", c.Store.Type)
	}
	if c.Relay.QueueSize < 1 {
		return fmt.Errorf("relay.queue_size must be positive")
	}
	if _, err := logrus.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("invalid app.log_level: %w", err)
	}
	return nil
}
