// Package config loads the dagstore server configuration.
//
// Values come from, in increasing priority: built-in defaults, an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string           `yaml:"listen_addr" validate:"required"`
	Store      StoreConfig      `yaml:"store"`
	Validation ValidationConfig `yaml:"validation"`
	Log        LogConfig        `yaml:"log"`
}

// StoreConfig selects and configures the graph store.
type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=postgres badger"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Driver postgres"`
	Isolation   string `yaml:"isolation" validate:"oneof=read_committed repeatable_read serializable"`
	// BadgerPath is the badger data directory. Empty runs in memory.
	BadgerPath string `yaml:"badger_path"`
}

// ValidationConfig selects the cycle check strategy.
type ValidationConfig struct {
	Mode string `yaml:"mode" validate:"oneof=full reachability"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

var validate = validator.New()

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		ListenAddr: ":3000",
		Store: StoreConfig{
			Driver:    "postgres",
			Isolation: "read_committed",
		},
		Validation: ValidationConfig{Mode: "full"},
		Log:        LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// env maps environment variables onto config fields.
var env = []struct {
	name  string
	field func(*Config) *string
}{
	{"LISTEN_ADDR", func(c *Config) *string { return &c.ListenAddr }},
	{"DAGSTORE_DRIVER", func(c *Config) *string { return &c.Store.Driver }},
	{"DATABASE_URL", func(c *Config) *string { return &c.Store.DatabaseURL }},
	{"DAGSTORE_ISOLATION", func(c *Config) *string { return &c.Store.Isolation }},
	{"BADGER_PATH", func(c *Config) *string { return &c.Store.BadgerPath }},
	{"DAGSTORE_VALIDATION_MODE", func(c *Config) *string { return &c.Validation.Mode }},
	{"LOG_LEVEL", func(c *Config) *string { return &c.Log.Level }},
	{"LOG_FORMAT", func(c *Config) *string { return &c.Log.Format }},
}

func (c *Config) applyEnv() {
	for _, e := range env {
		if v, ok := os.LookupEnv(e.name); ok && v != "" {
			*e.field(c) = v
		}
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// SlogLevel returns the slog level for the configured name.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
