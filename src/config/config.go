// Package config provides configuration management for the telemetry stack.
//
// Values come from an optional TOML file and from environment variables;
// environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/telemetry"
)

// Environment variables.
const (
	EnvConfigPath       = "PECAN_CONFIG"
	EnvRedpandaBrokers  = "REDPANDA_BROKERS"
	EnvPostgresDSN      = "POSTGRES_DSN"
	EnvRetentionSeconds = "PECAN_RETENTION_SECONDS"
	EnvCatalog          = "PECAN_CATALOG"
	EnvTopic            = "PECAN_TOPIC"
	EnvLogFile          = "PECAN_LOG_FILE"
)

const defaultConfigPath = "~/.config/pecan/config.toml"

// Config holds the application configuration.
type Config struct {
	// RedpandaBrokers selects distributed mode when non-empty.
	RedpandaBrokers []string
	// PostgresDSN enables the sample archive when set.
	PostgresDSN string
	// RetentionWindow is the initial in-memory history per message.
	RetentionWindow time.Duration
	// CatalogPath points to a YAML decode catalog. Empty uses the built-in one.
	CatalogPath string
	// Topic carries CAN frame batches.
	Topic string
	// LogFile receives logs from headless commands. Empty logs to the console.
	LogFile string
}

// fileConfig mirrors the TOML file layout.
type fileConfig struct {
	RedpandaBrokers  []string `toml:"redpanda_brokers"`
	PostgresDSN      string   `toml:"postgres_dsn"`
	RetentionSeconds float64  `toml:"retention_seconds"`
	Catalog          string   `toml:"catalog"`
	Topic            string   `toml:"topic"`
	LogFile          string   `toml:"log_file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		RetentionWindow: telemetry.DefaultRetentionWindow,
		Topic:           contracts.TopicCANMessages,
	}
}

// LoadFromEnv loads the config file named by PECAN_CONFIG (or the default
// path, if present) and applies environment overrides.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	path := os.Getenv(EnvConfigPath)
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultConfigPath
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a TOML file. A missing file is only an error when the
// path was given explicitly.
func (c *Config) loadFile(path string, explicit bool) error {
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", resolved, err)
	}

	if len(raw.RedpandaBrokers) > 0 {
		c.RedpandaBrokers = raw.RedpandaBrokers
	}
	if v := strings.TrimSpace(raw.PostgresDSN); v != "" {
		c.PostgresDSN = v
	}
	if raw.RetentionSeconds != 0 {
		window, err := telemetry.ParseRetentionSeconds(raw.RetentionSeconds)
		if err != nil {
			return fmt.Errorf("config retention_seconds: %w", err)
		}
		c.RetentionWindow = window
	}
	if v := strings.TrimSpace(raw.Catalog); v != "" {
		c.CatalogPath = v
	}
	if v := strings.TrimSpace(raw.Topic); v != "" {
		c.Topic = v
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		c.LogFile = v
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvRedpandaBrokers); v != "" {
		c.RedpandaBrokers = splitList(v)
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRetentionSeconds)); v != "" {
		seconds, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetentionSeconds, err)
		}
		window, err := telemetry.ParseRetentionSeconds(seconds)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetentionSeconds, err)
		}
		c.RetentionWindow = window
	}
	if v := strings.TrimSpace(os.Getenv(EnvCatalog)); v != "" {
		c.CatalogPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTopic)); v != "" {
		c.Topic = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		c.LogFile = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
