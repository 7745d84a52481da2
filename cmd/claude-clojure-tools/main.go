package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kennyjwilli/claude-clojure-tools/bridge"
	"github.com/kennyjwilli/claude-clojure-tools/launcher"
	"github.com/kennyjwilli/claude-clojure-tools/observability"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	configFile string
	mode       string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "claude-clojure-tools",
	Short: "MCP bridge exposing a persistent Clojure nREPL session as a tool",
	Long: `claude-clojure-tools serves the Model Context Protocol over stdio and maps
the repl_eval tool onto a long-lived nREPL session. The nREPL server is
discovered through .nrepl-port or launched as a subprocess on first use.`,
	RunE: run,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("claude-clojure-tools %s\n", version))

	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to config JSON file")
	rootCmd.Flags().StringVar(&mode, "mode", "", "Server acquisition mode: always-start, prefer-existing, require-existing (overrides config)")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging to stderr")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := bridge.DefaultConfig()
	if configFile != "" {
		loaded, err := bridge.LoadConfig(configFile)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	if mode != "" {
		cfg.Mode = launcher.Mode(mode)
	}

	// Stdout carries the RPC channel; all logging goes to stderr.
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	b, err := bridge.New(&cfg,
		bridge.WithObserver(observability.NewSlogObserver(logger)),
		bridge.WithVersion(version),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return b.Serve(ctx, os.Stdin, os.Stdout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
