// Package httpapi exposes the queue service over its REST surface, plus the
// health endpoint probed by the connectivity prober.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/security"
)

type config struct {
	logger     *slog.Logger
	middleware func(http.Handler) http.Handler
}

// Option configures the handler.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMiddleware wraps the handler, typically for authentication.
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(c *config) { c.middleware = mw }
}

// Handler creates an http.Handler serving the queue endpoints:
//
//	GET    /queue?status=&limit=
//	POST   /queue
//	PATCH  /queue/{id}
//	GET    /health
//
// Usage:
//
//	mux.Handle("/sync/", http.StripPrefix("/sync", httpapi.Handler(svc)))
func Handler(svc core.Service, opts ...Option) http.Handler {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	api := &server{service: svc, logger: cfg.logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", api.health)
	mux.HandleFunc("GET /queue", api.list)
	mux.HandleFunc("POST /queue", api.create)
	mux.HandleFunc("PATCH /queue/{id}", api.patch)

	if cfg.middleware != nil {
		return cfg.middleware(mux)
	}
	return mux
}

type server struct {
	service core.Service
	logger  *slog.Logger
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	status := core.StatusPending
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = core.Status(strings.ToUpper(raw))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status filter.")
			return
		}
	}

	limit := security.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit.")
			return
		}
		limit = security.ClampListLimit(n)
	}

	entries, err := s.service.ListEntries(r.Context(), status, limit)
	if err != nil {
		s.logger.Error("failed to list sync queue", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load sync queue.")
		return
	}
	if entries == nil {
		entries = []*core.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	var d core.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if d.EntityType == "" || d.Action == "" || d.Payload == nil {
		writeError(w, http.StatusBadRequest, "entityType, action, and payload are required.")
		return
	}

	entry, err := s.service.CreateEntry(r.Context(), d)
	if err != nil {
		switch {
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrDuplicateEntry):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("failed to enqueue sync item", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to enqueue sync item.")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

func (s *server) patch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Invalid queue identifier.")
		return
	}

	var p core.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if !p.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status value.")
		return
	}

	entry, err := s.service.PatchEntry(r.Context(), id, p)
	if err != nil {
		if errors.Is(err, core.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "Sync entry not found.")
			return
		}
		s.logger.Error("failed to update sync entry", "entry_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update sync entry.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidEntityType) ||
		errors.Is(err, core.ErrEntityTypeTooLong) ||
		errors.Is(err, core.ErrInvalidAction) ||
		errors.Is(err, core.ErrActionTooLong) ||
		errors.Is(err, core.ErrPayloadTooLarge) ||
		errors.Is(err, core.ErrInvalidStatus) ||
		errors.Is(err, core.ErrDedupeKeyTooLong)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
