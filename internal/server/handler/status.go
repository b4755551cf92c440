package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// CycleSource exposes the most recent completed scan cycle. It is declared
// locally so the handler package does not depend on the scanner package.
type CycleSource interface {
	LastCycle() (domain.CycleStats, bool)
}

// StatusHandler serves the scanner status for dashboards and the status CLI.
type StatusHandler struct {
	cycles    CycleSource
	interval  time.Duration
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler reporting against the given cycle
// source and scan interval.
func NewStatusHandler(cycles CycleSource, interval time.Duration, startedAt time.Time) *StatusHandler {
	return &StatusHandler{
		cycles:    cycles,
		interval:  interval,
		startedAt: startedAt,
	}
}

// GetStatus responds with process uptime, the configured scan interval, and
// the last cycle summary (null until the first cycle completes).
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	resp := map[string]any{
		"status":         "running",
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": uptime,
		"scan_interval":  h.interval.String(),
		"last_cycle":     nil,
	}
	if last, ok := h.cycles.LastCycle(); ok {
		resp["last_cycle"] = last
	}

	writeJSON(w, http.StatusOK, resp)
}
