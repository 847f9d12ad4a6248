// Package config loads client configuration from an optional TOML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultServerURL points at a locally running agent server.
const DefaultServerURL = "http://localhost:8000"

// Config holds the client settings.
type Config struct {
	// ServerURL is the base URL of the agent server.
	ServerURL string
	// ReconnectDelay is the fixed pause before each reconnect attempt.
	ReconnectDelay time.Duration
	// LogLevel is the zerolog level name.
	LogLevel string
	// Debug enables verbose logging.
	Debug bool
	// TetherHome is the directory where tether keeps local state (config
	// file, log file).
	TetherHome string
}

// fileConfig is the on-disk TOML shape (~/.tether/config.toml).
type fileConfig struct {
	ServerURL   string `toml:"server_url"`
	ReconnectMS int    `toml:"reconnect_ms"`
	LogLevel    string `toml:"log_level"`
	Debug       bool   `toml:"debug"`
}

// Load builds the configuration: defaults, then the config file if present,
// then environment variables.
func Load() (*Config, error) {
	home := os.Getenv("TETHER_HOME_DIR")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		home = filepath.Join(userHome, ".tether")
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("create tether home: %w", err)
	}

	cfg := &Config{
		ServerURL:      DefaultServerURL,
		ReconnectDelay: 3 * time.Second,
		LogLevel:       "info",
		TetherHome:     home,
	}

	path := filepath.Join(home, "config.toml")
	if data, err := os.ReadFile(path); err == nil {
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if fc.ServerURL != "" {
			cfg.ServerURL = fc.ServerURL
		}
		if fc.ReconnectMS > 0 {
			cfg.ReconnectDelay = time.Duration(fc.ReconnectMS) * time.Millisecond
		}
		if fc.LogLevel != "" {
			cfg.LogLevel = fc.LogLevel
		}
		if fc.Debug {
			cfg.Debug = true
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("TETHER_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("TETHER_RECONNECT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid TETHER_RECONNECT_MS %q", v)
		}
		cfg.ReconnectDelay = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("TETHER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TETHER_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

// LogFile returns the path of the log file used while the TUI owns the
// terminal.
func (c *Config) LogFile() string {
	return filepath.Join(c.TetherHome, "tether.log")
}
