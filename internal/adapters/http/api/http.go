// Package api exposes read access to tracked miners over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sugawarayuuta/sonnet"

	"github.com/okian/minerwatch/internal/adapters/repository"
	"github.com/okian/minerwatch/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Lookup(ctx context.Context, id string) (types.MinerView, error)
	Miners(ctx context.Context) []types.MinerView
}

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	minersHandler *MinersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		minersHandler: NewMinersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/miners", MetricsMiddleware(s.minersHandler.HandleList, "miners"))
	mux.HandleFunc("/miners/", MetricsMiddleware(s.minersHandler.HandleGet, "miner"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrNotFound)
}
