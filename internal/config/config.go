// Package config loads service configuration from a YAML file and the
// environment. Precedence, lowest first: defaults, file, environment.
// Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rbruinekool/singularity/internal/dispatch"
)

// Config is the full service configuration.
type Config struct {
	Database string   `yaml:"database" env:"SINGULARITY_DATABASE"`
	Listen   string   `yaml:"listen" env:"SINGULARITY_LISTEN"`
	Remote   Remote   `yaml:"remote" envPrefix:"SINGULARITY_REMOTE_"`
	Dispatch Dispatch `yaml:"dispatch" envPrefix:"SINGULARITY_DISPATCH_"`
	Log      Log      `yaml:"log" envPrefix:"SINGULARITY_LOG_"`
}

// Remote locates the renderer.
type Remote struct {
	BaseURL string `yaml:"baseURL" env:"BASE_URL"`
}

// Dispatch tunes outbound control calls.
type Dispatch struct {
	Timeout       time.Duration          `yaml:"timeout" env:"TIMEOUT"`
	OffAirPayload dispatch.OffAirPayload `yaml:"offAirPayload" env:"OFF_AIR_PAYLOAD"`
}

// Log selects the log level.
type Log struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: "singularity.db",
		Listen:   "127.0.0.1:8080",
		Dispatch: Dispatch{
			Timeout:       dispatch.DefaultTimeout,
			OffAirPayload: dispatch.OffAirEmpty,
		},
		Log: Log{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys so typos surface instead of being
// silently ignored.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database must be set"))
	}
	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("remote.baseURL %q is not an absolute URL", c.Remote.BaseURL))
		}
	}
	if c.Dispatch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.timeout must be positive, got %s", c.Dispatch.Timeout))
	}
	if !c.Dispatch.OffAirPayload.Valid() {
		errs = append(errs, fmt.Errorf("dispatch.offAirPayload must be %q or %q, got %q",
			dispatch.OffAirEmpty, dispatch.OffAirResolved, c.Dispatch.OffAirPayload))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
}
