package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stellarstream/watcher/internal/audit"
	"github.com/stellarstream/watcher/internal/batch"
	"github.com/stellarstream/watcher/internal/watcher"
	"github.com/stellarstream/watcher/internal/webhook"
)

const (
	maxBatchIDs       = 200
	defaultEventLimit = 50
)

// Server exposes the query and webhook-management API over the indexed data.
type Server struct {
	batch    *batch.Service
	watcher  *watcher.Watcher
	audit    *audit.Log
	webhooks *webhook.Service
	log      *slog.Logger
	server   *http.Server
}

// NewServer wires the HTTP routes.
func NewServer(port int, batchSvc *batch.Service, w *watcher.Watcher, auditLog *audit.Log, webhooks *webhook.Service) *Server {
	mux := http.NewServeMux()
	s := &Server{
		batch:    batchSvc,
		watcher:  w,
		audit:    auditLog,
		webhooks: webhooks,
		log:      slog.Default(),
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("POST /api/streams/batch", s.handleBatch)
	mux.HandleFunc("GET /api/streams/{id}/events", s.handleStreamEvents)
	mux.HandleFunc("GET /api/events/recent", s.handleRecentEvents)
	mux.HandleFunc("GET /api/watcher/status", s.handleWatcherStatus)
	mux.HandleFunc("POST /api/webhooks", s.handleRegisterWebhook)
	mux.HandleFunc("GET /api/webhooks", s.handleListWebhooks)
	mux.HandleFunc("DELETE /api/webhooks/{id}", s.handleDeactivateWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start blocks serving HTTP until Stop or a listener error.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

// handleBatch validates the id list bounds here at the boundary; the batch
// service itself accepts anything.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must contain at least 1 entry")
		return
	}
	if len(req.IDs) > maxBatchIDs {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ids must contain at most %d entries", maxBatchIDs))
		return
	}
	for _, id := range req.IDs {
		if strings.TrimSpace(id) == "" {
			writeError(w, http.StatusBadRequest, "ids must be non-empty strings")
			return
		}
	}

	writeJSON(w, http.StatusOK, s.batch.GetBatch(r.Context(), req.IDs))
}

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("id")
	if streamID == "" {
		writeError(w, http.StatusBadRequest, "missing stream id")
		return
	}

	entries, err := s.audit.ByStream(r.Context(), streamID)
	if err != nil {
		s.log.Error("audit query failed", "stream_id", streamID, "error", err)
		writeError(w, http.StatusInternalServerError, "event log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "event log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (s *Server) handleWatcherStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.State())
}

type registerWebhookRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req registerWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	target, err := s.webhooks.Register(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	targets, err := s.webhooks.List(r.Context())
	if err != nil {
		s.log.Error("webhook list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "webhook registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": targets})
}

func (s *Server) handleDeactivateWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.webhooks.Deactivate(r.Context(), id); err != nil {
		s.log.Error("webhook deactivate failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "webhook registry unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.watcher.State()
	status := "ok"
	code := http.StatusOK
	if !state.IsRunning {
		status = "watcher stopped"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":                status,
		"last_processed_ledger": state.LastProcessedLedger,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
