package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rcrowley/go-metrics"

	"i4.energy/across/catmgw/gateway"
)

type fakeGateway struct {
	status     gateway.Status
	refreshErr error
	refreshes  int
}

func (f *fakeGateway) Status() gateway.Status { return f.status }

func (f *fakeGateway) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func newServer(g GatewayService) (*Server, metrics.Registry) {
	registry := metrics.NewRegistry()
	return &Server{
		Logger:   slog.New(slog.DiscardHandler),
		Gateway:  g,
		Registry: registry,
	}, registry
}

func TestHandleStatus(t *testing.T) {
	s, _ := newServer(&fakeGateway{status: gateway.Status{
		State:        "PollingGrant",
		Registration: " 1,1",
		UserCode:     "ABC123",
	}})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var got gateway.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "PollingGrant" || got.UserCode != "ABC123" || got.Authenticated {
		t.Errorf("unexpected status %+v", got)
	}
}

func TestHandleRefresh(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "success", expected: http.StatusOK},
		{name: "not authenticated", err: gateway.ErrNotAuthenticated, expected: http.StatusConflict},
		{name: "refresh failed", err: fmt.Errorf("%w: no access_token in response", gateway.ErrRefreshFailed), expected: http.StatusBadGateway},
		{name: "other failure", err: errors.New("modem gone"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{refreshErr: tt.err, status: gateway.Status{State: "RefreshApplied", Authenticated: true}}
			s, _ := newServer(g)

			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/token/refresh", nil))

			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
			if g.refreshes != 1 {
				t.Errorf("expected one refresh, got %d", g.refreshes)
			}
			if tt.err != nil && !strings.Contains(rec.Body.String(), tt.err.Error()) {
				t.Errorf("expected error message in body, got %q", rec.Body.String())
			}
		})
	}
}

func TestHandleMetrics(t *testing.T) {
	s, registry := newServer(&fakeGateway{})
	metrics.GetOrRegisterCounter("gateway.grant.polls", registry).Inc(3)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if count, ok := got["gateway.grant.polls"]["count"].(float64); !ok || count != 3 {
		t.Errorf("expected grant poll count 3, got %v", got["gateway.grant.polls"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newServer(&fakeGateway{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/token/refresh", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
