// internal/ops/handler.go

// Package ops exposes a small operations HTTP surface next to the bot:
// liveness and an on-demand overdue report. It serves operators, not
// channel users, and never mutates the ledger.
package ops

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"gearledger/internal/overdue"
)

type Handler struct {
	scanner *overdue.Scanner
	logger  *slog.Logger
}

func NewHandler(scanner *overdue.Scanner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{scanner: scanner, logger: logger}
}

// Router builds the ops routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)
	r.Get("/healthz", h.handleHealth)
	r.Get("/api/v1/overdue", h.handleOverdue)
	return r
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		next.ServeHTTP(w, r)
		h.logger.Info("ops request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleOverdue runs one sweep and returns the notices. A snapshot
// failure is a 502: the ledger, not this service, is the broken part.
func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	notices, err := h.scanner.Sweep(r.Context())
	if err != nil {
		h.logger.Error("on-demand sweep failed", "error", err)
		http.Error(w, "ledger snapshot unavailable", http.StatusBadGateway)
		return
	}
	if notices == nil {
		notices = []overdue.Notice{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notices)
}
