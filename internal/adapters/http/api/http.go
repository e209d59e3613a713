// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	types "github.com/okian/kline/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RegisterChart(ctx context.Context, c chart.Chart, birthYear int) (types.ChartInfo, error)
	ChartInfo(chartID string) (types.ChartInfo, error)
	RemoveChart(ctx context.Context, chartID string) error
	Timeline(ctx context.Context, chartID, strategy string, refresh bool, onProgress curve.ProgressFunc) (*model.Timeline, error)
	Series(ctx context.Context, chartID string, kind model.Kind, year int, refresh bool) (*model.Timeline, error)
	RequestNarratives(ctx context.Context, chartID string, kind model.Kind, year int, indices []int) (queued, duplicates int, err error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	chartsHandler   *ChartsHandler
	timelineHandler *TimelineHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		chartsHandler:   NewChartsHandler(deps),
		timelineHandler: NewTimelineHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/charts", MetricsMiddleware(s.chartsHandler.HandleRegister, "charts"))
	mux.HandleFunc("GET /v1/charts/{id}", MetricsMiddleware(s.chartsHandler.HandleGet, "chart"))
	mux.HandleFunc("DELETE /v1/charts/{id}", MetricsMiddleware(s.chartsHandler.HandleDelete, "chart"))

	mux.HandleFunc("GET /v1/charts/{id}/timeline", MetricsMiddleware(s.timelineHandler.HandleTimeline, "timeline"))
	mux.HandleFunc("GET /v1/charts/{id}/decades", MetricsMiddleware(s.timelineHandler.HandleDecades, "decades"))
	mux.HandleFunc("GET /v1/charts/{id}/years", MetricsMiddleware(s.timelineHandler.HandleYears, "years"))
	mux.HandleFunc("GET /v1/charts/{id}/months", MetricsMiddleware(s.timelineHandler.HandleMonths, "months"))
	mux.HandleFunc("POST /v1/charts/{id}/narratives", MetricsMiddleware(s.timelineHandler.HandleNarratives, "narratives"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// intQuery reads an optional integer query parameter.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return v, nil
}

// boolQuery reads an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrBadRequest, name)
	}
	return v, nil
}
