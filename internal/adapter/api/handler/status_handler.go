package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// RunReport is the externally visible summary of one pipeline run.
type RunReport struct {
	Run        domain.RunInfo  `json:"run"`
	Stats      domain.RunStats `json:"stats"`
	FinishedAt time.Time       `json:"finished_at"`
	Error      string          `json:"error,omitempty"`
}

// StatusHandler serves health and last-run information.
type StatusHandler struct {
	logger *slog.Logger

	mu   sync.RWMutex
	last *RunReport
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(logger *slog.Logger) *StatusHandler {
	return &StatusHandler{logger: logger}
}

// Record stores the outcome of a run. err may be nil.
func (h *StatusHandler) Record(run domain.RunInfo, stats domain.RunStats, err error) {
	report := &RunReport{Run: run, Stats: stats, FinishedAt: time.Now().UTC()}
	if err != nil {
		report.Error = err.Error()
	}
	h.mu.Lock()
	h.last = report
	h.mu.Unlock()
}

// HealthCheck is a simple health check endpoint.
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LastRun reports the most recent run.
// GET /runs/last
func (h *StatusHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()

	if last == nil {
		http.Error(w, "no run has finished yet", http.StatusNotFound)
		return
	}
	h.respondWithJSON(w, http.StatusOK, last)
}

func (h *StatusHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
