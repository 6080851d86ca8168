package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"tripfare/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{Environment: "local"}
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestNewServer_RejectsNilDependencies(t *testing.T) {
	if _, err := NewServer(nil, testLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestNewServer_InitializesValidatorAndRouter(t *testing.T) {
	srv := newTestServer(t)
	if srv.Validator == nil {
		t.Error("Validator not initialized")
	}
	if srv.Router() == nil || srv.Handler() == nil {
		t.Error("router not initialized")
	}
}

func TestShutdown_RunsEveryHook(t *testing.T) {
	srv := newTestServer(t)
	var ran []string
	srv.ShutdownHooks = []func(context.Context) error{
		func(context.Context) error { ran = append(ran, "pool"); return nil },
		func(context.Context) error { ran = append(ran, "speech"); return nil },
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if len(ran) != 2 || ran[0] != "pool" || ran[1] != "speech" {
		t.Errorf("hooks ran = %v", ran)
	}
}

func TestShutdown_JoinsHookErrors(t *testing.T) {
	srv := newTestServer(t)
	errPool := errors.New("pool close failed")
	called := false
	srv.ShutdownHooks = []func(context.Context) error{
		func(context.Context) error { return errPool },
		func(context.Context) error { called = true; return nil },
	}

	err := srv.Shutdown(context.Background())
	if !errors.Is(err, errPool) {
		t.Fatalf("Shutdown error = %v, want wrapping %v", err, errPool)
	}
	if !called {
		t.Error("later hooks must still run after a failure")
	}
}
