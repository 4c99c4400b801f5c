/*
Package api exposes the read-only query surface over persisted reports:
a reports listing with an optional growth filter, and a health check.
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/shanehull/tdnetwatch/internal/pipeline"
	"github.com/shanehull/tdnetwatch/internal/types"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// ReportReader provides read access to persisted reports.
type ReportReader interface {
	ListReports(ctx context.Context, onlyDoubleGrowth bool, limit int) ([]types.Report, error)
}

// StatusFunc reports the current pipeline state for the health endpoint.
type StatusFunc func() pipeline.Status

// Handler serves the query API.
type Handler struct {
	reports ReportReader
	status  StatusFunc
	log     zerolog.Logger
}

// NewHandler creates the API handler. status may be nil.
func NewHandler(reports ReportReader, status StatusFunc, log zerolog.Logger) *Handler {
	return &Handler{
		reports: reports,
		status:  status,
		log:     log,
	}
}

// Router builds the chi router for the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/api/reports", h.listReports)
	r.Get("/api/health", h.health)
	return r
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	onlyDoubleGrowth := r.URL.Query().Get("filter") == "double_growth"

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	reports, err := h.reports.ListReports(r.Context(), onlyDoubleGrowth, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list reports")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": "failed to load reports",
		})
		return
	}
	if reports == nil {
		reports = []types.Report{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"count": len(reports),
		"data":  reports,
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"ok":        true,
		"timestamp": time.Now().UnixMilli(),
	}
	if h.status != nil {
		payload["run"] = h.status()
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
