package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rcrowley/go-metrics"

	"i4.energy/across/catmgw/gateway"
)

// GatewayService is the part of the gateway the HTTP server exposes.
// *gateway.Gateway satisfies it.
type GatewayService interface {
	Status() gateway.Status
	Refresh(ctx context.Context) error
}

// Server handles incoming HTTP requests for inspecting and operating the
// gateway
type Server struct {
	Logger   *slog.Logger
	Gateway  GatewayService
	Registry metrics.Registry
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /token/refresh", s.handleRefresh)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// handleStatus reports the gateway state, the registration payload and any
// user code awaiting authorization. Tokens are never exposed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Gateway.Status())
}

// handleRefresh triggers an immediate access token refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Gateway.Refresh(r.Context()); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, gateway.ErrNotAuthenticated):
			status = http.StatusConflict
		case errors.Is(err, gateway.ErrRefreshFailed):
			status = http.StatusBadGateway
		}
		s.Logger.Error("Token refresh failed", "error", err)
		s.sendError(w, err.Error(), status)
		return
	}

	s.Logger.Info("Token refreshed on request")
	s.sendJSON(w, s.Gateway.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	metrics.WriteJSONOnce(s.Registry, w)
}
