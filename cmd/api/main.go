// Package main is the entry point for the trip fare API server.
//
// It loads the configuration, trains the price model from the configured
// dataset, builds the HTTP server with the core chassis (middleware,
// routing, health checks) and starts serving predictions.
//
// Outside AWS Lambda it runs as a standard HTTP server on the configured
// port. Inside Lambda (AWS_LAMBDA_RUNTIME_API is set) the same router is
// served through the API Gateway proxy adapter.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"tripfare/internal/api/handlers"
	"tripfare/internal/app"
	"tripfare/internal/config"
	"tripfare/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tripfare API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	// Training blocks startup; nothing is served until the model is active.
	rt, err := app.Bootstrap(ctx, cfg, logger, app.Options{AnnouncePredictions: true})
	if err != nil {
		return err
	}

	var metrics core.MetricsCollector
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			rt.Close()
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		metrics = core.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	srv, err := buildServer(cfg, rt, metrics, logger)
	if err != nil {
		rt.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	if isLambdaEnvironment() {
		logger.Info("starting in Lambda mode")
		lambda.Start(core.NewLambdaAdapter(srv.Handler()).Proxy)
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires the handlers for rt into a mounted core.Server.
func buildServer(cfg *config.Config, rt *app.Runtime, metrics core.MetricsCollector, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Metrics = metrics

	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "model",
		Fn: func(context.Context) error {
			if !rt.Service.Ready() {
				return errors.New("model is not trained")
			}
			return nil
		},
	})

	predictionHandler := handlers.NewPredictionHandler(rt.Service, srv.Validator, logger)
	insightsHandler := handlers.NewInsightsHandler(rt.Report)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		predictionHandler.RegisterRoutes,
		insightsHandler.RegisterRoutes,
	)
	srv.RouteRegistrars = append(srv.RouteRegistrars, predictionHandler.RegisterUnversionedRoutes)

	srv.ShutdownHooks = append(srv.ShutdownHooks, func(context.Context) error {
		rt.Close()
		return nil
	})

	srv.MountRoutes()
	return srv, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Drains pending speech announcements and closes the dataset pool.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
