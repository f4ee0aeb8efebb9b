package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentlens/agentlens/internal/adapter/ws"
	"github.com/agentlens/agentlens/internal/domain/call"
	"github.com/agentlens/agentlens/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Inspect *service.InspectService
	Record  *service.RecordService
	Hub     *ws.Hub
	Version string
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/calls", h.ListCalls)
		r.Post("/calls", h.RecordCall)
		r.Get("/calls/live", h.LiveCalls)
		r.Get("/stats", h.UsageStats)
	})
}

// Healthz reports service liveness and the current history depth.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	type health struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		HistoryDepth  int    `json:"history_depth"`
		LiveObservers int    `json:"live_observers"`
	}
	resp := health{Status: "ok", Version: h.Version}
	if h.Inspect != nil {
		resp.HistoryDepth = h.Inspect.Depth()
	}
	if h.Hub != nil {
		resp.LiveObservers = h.Hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCalls serves a filtered page of recorded tool calls.
func (h *Handlers) ListCalls(w http.ResponseWriter, r *http.Request) {
	q, ok := parseCallQuery(w, r)
	if !ok {
		return
	}

	page, err := h.Inspect.ListCalls(r.Context(), q)
	if err != nil {
		writeDomainError(w, err, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UsageStats serves aggregated usage statistics over the retained window.
func (h *Handlers) UsageStats(w http.ResponseWriter, r *http.Request) {
	usage, err := h.Inspect.UsageStats(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// RecordCall ingests one completed tool call.
func (h *Handlers) RecordCall(w http.ResponseWriter, r *http.Request) {
	rec, ok := readJSON[call.Record](w, r)
	if !ok {
		return
	}
	rec.SequenceID = 0 // assigned by the store

	if err := h.Record.Record(r.Context(), &rec); err != nil {
		if errors.Is(err, service.ErrSkipped) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
			return
		}
		writeDomainError(w, err, "failed to record call")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// LiveCalls upgrades to a WebSocket that streams committed records.
func (h *Handlers) LiveCalls(w http.ResponseWriter, r *http.Request) {
	h.Hub.HandleWS(w, r)
}

// parseCallQuery maps query string parameters onto a call.Query.
// Returns false after writing a 400 when a parameter is malformed.
func parseCallQuery(w http.ResponseWriter, r *http.Request) (call.Query, bool) {
	q := call.Query{MaxResults: call.DefaultMaxResults}
	params := r.URL.Query()

	q.ToolName = params.Get("tool_name")

	if raw := params.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since is not a valid ISO-8601 timestamp")
			return q, false
		}
		q.Since = &ts
	}

	if raw := params.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer")
			return q, false
		}
		q.Offset = n
	}

	if raw := params.Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "max_results must be a non-negative integer")
			return q, false
		}
		q.MaxResults = n
	}

	return q, true
}
