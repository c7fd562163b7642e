package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/iammorganparry/neurograph/internal/consolidate"
	"github.com/iammorganparry/neurograph/internal/store"
)

// EmbedderHealth reports whether the embedding backend is reachable.
// Nil checks are allowed: the hash embedder has no backend.
type EmbedderHealth interface {
	HealthCheck() error
}

// TriggerHandler exposes the consolidation triggers over HTTP.
type TriggerHandler struct {
	trigger consolidate.Trigger
	metrics *Metrics
}

// NewTriggerHandler wraps a trigger for HTTP dispatch.
func NewTriggerHandler(trigger consolidate.Trigger, metrics *Metrics) *TriggerHandler {
	return &TriggerHandler{trigger: trigger, metrics: metrics}
}

type editRequest struct {
	File string `json:"file"`
}

func (h *TriggerHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.File == "" {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	res := h.trigger.OnEdit(r.Context(), req.File)
	h.metrics.Observe("edit", res)
	writeJSON(w, http.StatusOK, res)
}

type commandRequest struct {
	Command string `json:"command"`
}

func (h *TriggerHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	res := h.trigger.OnCommand(r.Context(), req.Command)
	h.metrics.Observe("command", res)
	writeJSON(w, http.StatusOK, res)
}

type sessionStartRequest struct {
	Agent   string `json:"agent"`
	Session string `json:"session"`
}

func (h *TriggerHandler) SessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res := h.trigger.OnSessionStart(r.Context(), req.Agent, req.Session)
	h.metrics.Observe("session_start", res)
	writeJSON(w, http.StatusOK, res)
}

func (h *TriggerHandler) SessionEnd(w http.ResponseWriter, r *http.Request) {
	res := h.trigger.OnSessionEnd(r.Context())
	h.metrics.Observe("session_end", res)
	writeJSON(w, http.StatusOK, res)
}

func (h *TriggerHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	res := h.trigger.OnConsolidate(r.Context())
	h.metrics.Observe("consolidate", res)
	h.metrics.ObserveSweep(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, res)
}

// StatsHandler serves the aggregate counters the sweep maintains.
type StatsHandler struct {
	store store.Store
}

func NewStatsHandler(st store.Store) *StatsHandler {
	return &StatsHandler{store: st}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.SelectRecent(store.TableStats, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	stats := make(map[string]string, len(rows))
	for _, row := range rows {
		name, _ := row["name"].(string)
		value, _ := row["value"].(string)
		if name != "" {
			stats[name] = value
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// HealthHandler reports store and embedder reachability.
type HealthHandler struct {
	store    store.Store
	embedder EmbedderHealth
}

func NewHealthHandler(st store.Store, embedder EmbedderHealth) *HealthHandler {
	return &HealthHandler{store: st, embedder: embedder}
}

type serviceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status      string       `json:"status"`
	DB          serviceCheck `json:"db"`
	Embedder    serviceCheck `json:"embedder"`
	MemoryCount int          `json:"memory_count"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	count, err := h.store.Count(store.TableMemories)
	if err != nil {
		resp.DB = serviceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.DB = serviceCheck{Status: "ok"}
		resp.MemoryCount = count
	}

	if h.embedder == nil {
		resp.Embedder = serviceCheck{Status: "ok", Message: "local"}
	} else if err := h.embedder.HealthCheck(); err != nil {
		resp.Embedder = serviceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Embedder = serviceCheck{Status: "ok"}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
