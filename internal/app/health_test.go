package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"folio/api/internal/metrics"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	server := NewHTTPServer(env.service, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload["ok"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestReadyEndpointHealthy(t *testing.T) {
	env := newTestEnv(t)
	env.service.AddReadinessCheck("redis", func(context.Context) error { return nil })
	server := NewHTTPServer(env.service, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["status"] != "ready" {
		t.Fatalf("expected status=ready, got %v", payload["status"])
	}
	checks, _ := payload["checks"].(map[string]any)
	if _, ok := checks["database"]; !ok {
		t.Fatalf("expected database check, got %v", checks)
	}
	if _, ok := checks["redis"]; !ok {
		t.Fatalf("expected redis check, got %v", checks)
	}
}

func TestReadyEndpointDatabaseDown(t *testing.T) {
	env := newTestEnv(t)
	env.store.pingFn = func(context.Context) error {
		return errors.New("connection refused")
	}
	server := NewHTTPServer(env.service, "*", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["status"] != "not_ready" {
		t.Fatalf("expected status=not_ready, got %v", payload["status"])
	}
	checks, _ := payload["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if database["status"] != "error" || database["error"] != "connection refused" {
		t.Fatalf("unexpected database check: %v", database)
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnvWithMetrics(t, metrics.New(reg))
	server := NewHTTPServer(env.service, "*", zerolog.Nop()).
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/sections/sec_hero/publish", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, map[string]string{"org_a": "editor"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected publish to succeed, got %d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `folio_section_publish_total{outcome="ok"} 1`) {
		t.Fatalf("expected publish counter in metrics output:\n%s", rr.Body.String())
	}
}

func TestLogPathMasksPreviewTokens(t *testing.T) {
	if got := logPath("/preview/abc123"); got != "/preview/:token" {
		t.Fatalf("logPath() = %q", got)
	}
	if got := logPath("/api/sections/sec_1"); got != "/api/sections/sec_1" {
		t.Fatalf("logPath() = %q", got)
	}
}
