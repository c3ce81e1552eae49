// Package api exposes a small operator-facing status surface: liveness and
// the outcome of the most recent check cycle.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xyseins/bs-monitor/internal/monitor"
)

type Handlers struct {
	engine *monitor.Engine
	logger *slog.Logger
}

func NewHandlers(engine *monitor.Engine, logger *slog.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		logger: logger.With("component", "api"),
	}
}

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.Healthz)
	r.Get("/status", h.Status)
	return r
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the last finished cycle. Before the first cycle completes
// the response carries a null cycle rather than a 404 so probes stay simple.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"last_cycle": h.engine.LastCycle(),
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
