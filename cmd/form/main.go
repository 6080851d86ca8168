// Package main is the entry point for the interactive trip fare form.
//
// It trains the price model the same way the API does, then reads trips
// from standard input and prints the estimate. When speech is enabled the
// estimate is also spoken through the ElevenLabs API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tripfare/internal/app"
	"tripfare/internal/config"
	"tripfare/internal/form"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Logs go to stderr so they never interleave with the prompts.
	logger := newLogger(cfg.LogLevel)
	logger.Info("tripfare form starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()

	rt, err := app.Bootstrap(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer rt.Close()

	f := form.New(os.Stdin, os.Stdout, rt.Service, rt.Report, rt.Announcer, logger)
	if err := f.Run(ctx); err != nil {
		return fmt.Errorf("form: %w", err)
	}
	return nil
}

// newLogger creates a structured slog.Logger writing to stderr.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
