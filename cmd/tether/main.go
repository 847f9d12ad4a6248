package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tetherlabs/tether/internal/config"
	"github.com/tetherlabs/tether/internal/logging"
	"github.com/tetherlabs/tether/internal/runner"
	"github.com/tetherlabs/tether/internal/ui"
	"github.com/tetherlabs/tether/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage()
			return nil
		}
		return err
	}

	if len(args) > 0 {
		switch args[0] {
		case "run":
			return runTask(cfg, args[1:])
		case "help", "--help", "-h":
			printUsage()
			return nil
		case "version", "--version", "-v":
			fmt.Println("tether " + version.String())
			return nil
		default:
			return fmt.Errorf("unknown command %q (try 'tether help')", args[0])
		}
	}

	return ui.Run(cfg)
}

// runTask drives a single task to completion without the interactive UI.
func runTask(cfg *config.Config, args []string) error {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return fmt.Errorf("usage: tether run <task>")
	}

	logging.Configure(logging.Config{Level: cfg.LogLevel, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx, cfg, task, os.Stdout)
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("tether", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	serverURL := fs.String("server", "", "Agent server URL")
	reconnectMS := fs.Int("reconnect-ms", 0, "Reconnect delay in milliseconds")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *reconnectMS > 0 {
		cfg.ReconnectDelay = time.Duration(*reconnectMS) * time.Millisecond
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	return fs.Args(), nil
}

func printUsage() {
	fmt.Println(`tether - terminal client for a remote agent session

Usage:
  tether               Start the interactive session UI
  tether run <task>    Run a single task and print the stream to stdout
  tether help          Show this help message
  tether version       Show version information

Environment Variables:
  TETHER_SERVER_URL    Server URL (default: http://localhost:8000)
  TETHER_HOME_DIR      Config directory (default: ~/.tether)
  TETHER_RECONNECT_MS  Reconnect delay in milliseconds (default: 3000)
  TETHER_LOG_LEVEL     Log level (trace|debug|info|warn|error)
  TETHER_DEBUG         Enable debug logging (true/1)

Flags:
  --server             Agent server URL
  --reconnect-ms       Reconnect delay in milliseconds
  --debug              Enable debug logging

Examples:
  # Interactive session against a local server
  tether

  # One-shot task with output on stdout
  tether run "summarize the numbers in data.csv"`)
}
