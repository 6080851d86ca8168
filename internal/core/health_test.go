package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubProbe struct {
	name  string
	err   error
	delay time.Duration
	panic bool
}

func (p *stubProbe) Name() string { return p.name }

func (p *stubProbe) Check(ctx context.Context) error {
	if p.panic {
		panic("probe blew up")
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func runHealth(t *testing.T, probes ...HealthProbe) (int, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.Config.Build.Version = "1.0.0"
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, resp := runHealth(t)
	if code != http.StatusOK || resp.Status != "healthy" {
		t.Errorf("got %d %q, want 200 healthy", code, resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("Version = %q", resp.Version)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	code, resp := runHealth(t,
		&stubProbe{name: "model"},
		ProbeFunc{ProbeName: "dataset", Fn: func(context.Context) error { return nil }},
	)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	for _, name := range []string{"model", "dataset"} {
		if resp.Components[name].Status != "healthy" {
			t.Errorf("%s = %+v", name, resp.Components[name])
		}
	}
}

func TestHandleHealth_ModelNotReady(t *testing.T) {
	code, resp := runHealth(t,
		&stubProbe{name: "model", err: errors.New("model not trained")},
	)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("Status = %q", resp.Status)
	}
	if got := resp.Components["model"]; got.Status != "unhealthy" || got.Message != "model not trained" {
		t.Errorf("model component = %+v", got)
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	code, resp := runHealth(t, &stubProbe{name: "model", panic: true})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if resp.Components["model"].Status != "unhealthy" {
		t.Errorf("model component = %+v", resp.Components["model"])
	}
}

func TestHandleHealth_SlowProbeTimesOut(t *testing.T) {
	start := time.Now()
	code, _ := runHealth(t,
		&stubProbe{name: "model"},
		&stubProbe{name: "dataset", delay: 10 * time.Second},
	)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if elapsed := time.Since(start); elapsed > healthCheckTimeout+time.Second {
		t.Errorf("health check took %v, want about %v", elapsed, healthCheckTimeout)
	}
}
