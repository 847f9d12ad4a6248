// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for the global logger.
type Config struct {
	// Level is an optional zerolog level name ("debug", "info", ...).
	Level string
	// Output is the destination writer; defaults to os.Stderr. The TUI
	// points this at a file so log lines never hit the terminal.
	Output io.Writer
}

var (
	mu   sync.Mutex
	base zerolog.Logger
	done bool
)

// Configure initialises the global logger. The first call wins; later calls
// are no-ops so packages can safely call it lazily.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if done {
		return
	}
	done = true

	level := zerolog.InfoLevel
	raw := cfg.Level
	if raw == "" {
		raw = os.Getenv("TETHER_LOG_LEVEL")
	}
	if raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	base = zerolog.New(writer).With().Timestamp().Logger()
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	Configure(Config{})
	mu.Lock()
	defer mu.Unlock()
	return base
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
