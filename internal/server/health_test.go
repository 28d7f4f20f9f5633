package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthServer_Defaults(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "1.0.0"})
	if s.version != "1.0.0" {
		t.Fatalf("expected version 1.0.0, got %s", s.version)
	}
	if s.ready {
		t.Fatal("expected not ready initially")
	}
	if !s.live {
		t.Fatal("expected live initially")
	}
}

func serve(t *testing.T, s *HealthServer, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response from %s: %v", path, err)
	}
	return w, resp
}

func TestHealthServer_HandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []HealthStatus
		wantCode   int
		wantStatus HealthStatus
	}{
		{"healthy", []HealthStatus{HealthStatusHealthy}, http.StatusOK, HealthStatusHealthy},
		{"degraded", []HealthStatus{HealthStatusHealthy, HealthStatusDegraded}, http.StatusOK, HealthStatusDegraded},
		{"unhealthy", []HealthStatus{HealthStatusDegraded, HealthStatusUnhealthy}, http.StatusServiceUnavailable, HealthStatusUnhealthy},
		{"no_checks", nil, http.StatusOK, HealthStatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHealthServer(&HealthConfig{Version: "1.0.0"})
			for i, st := range tt.statuses {
				st := st
				s.RegisterCheck(string(rune('a'+i)), func(context.Context) HealthCheck {
					return HealthCheck{Status: st}
				})
			}

			for _, path := range []string{"/v1/health", "/healthz"} {
				w, resp := serve(t, s, path)
				if w.Code != tt.wantCode {
					t.Fatalf("%s: expected %d, got %d", path, tt.wantCode, w.Code)
				}
				if resp.Status != tt.wantStatus {
					t.Fatalf("%s: expected %s, got %s", path, tt.wantStatus, resp.Status)
				}
				if len(resp.Checks) != len(tt.statuses) {
					t.Fatalf("%s: expected %d checks, got %d", path, len(tt.statuses), len(resp.Checks))
				}
			}
		})
	}
}

func TestHealthServer_ChecksSortedAndNamed(t *testing.T) {
	s := NewHealthServer(nil)
	for _, name := range []string{"vector", "embedding", "chat"} {
		s.RegisterCheck(name, func(context.Context) HealthCheck { return HealthCheck{Status: HealthStatusHealthy} })
	}
	resp := s.Check(context.Background())
	got := []string{resp.Checks[0].Name, resp.Checks[1].Name, resp.Checks[2].Name}
	if got[0] != "chat" || got[1] != "embedding" || got[2] != "vector" {
		t.Fatalf("checks not sorted by name: %v", got)
	}
}

func TestHealthServer_Probes(t *testing.T) {
	s := NewHealthServer(nil)

	if w, _ := serve(t, s, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", w.Code)
	}
	s.SetReady(true)
	if w, _ := serve(t, s, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", w.Code)
	}

	if w, _ := serve(t, s, "/livez"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when live, got %d", w.Code)
	}
	s.SetLive(false)
	if w, _ := serve(t, s, "/livez"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not live, got %d", w.Code)
	}
}

func TestHealthServer_MethodNotAllowed(t *testing.T) {
	s := NewHealthServer(nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestVectorStoreHealthChecker(t *testing.T) {
	ok := VectorStoreHealthChecker("qdrant", func(context.Context) error { return nil })(context.Background())
	if ok.Status != HealthStatusHealthy || ok.Details["backend"] != "qdrant" {
		t.Fatalf("unexpected check %+v", ok)
	}
	bad := VectorStoreHealthChecker("qdrant", func(context.Context) error { return errors.New("refused") })(context.Background())
	if bad.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", bad.Status)
	}
}

func TestModelHealthChecker(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context) error
		want HealthStatus
	}{
		{"nil_fn", nil, HealthStatusHealthy},
		{"ok", func(context.Context) error { return nil }, HealthStatusHealthy},
		{"failing", func(context.Context) error { return errors.New("timeout") }, HealthStatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := ModelHealthChecker("embedding", "ollama", tt.fn)(context.Background())
			if check.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, check.Status)
			}
			if check.Details["provider"] != "ollama" {
				t.Fatalf("missing provider detail: %+v", check.Details)
			}
		})
	}
}

func TestTemporalHealthChecker(t *testing.T) {
	if c := TemporalHealthChecker(func(context.Context) error { return nil })(context.Background()); c.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", c.Status)
	}
	if c := TemporalHealthChecker(func(context.Context) error { return errors.New("down") })(context.Background()); c.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", c.Status)
	}
}

func TestHealthResponse_ContentType(t *testing.T) {
	w, _ := serve(t, NewHealthServer(nil), "/livez")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
}
