package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler reports daemon liveness plus enough shape (mode, vault
// count, uptime) for an operator to spot a misconfigured replica.
type HealthHandler struct {
	mode       string
	vaultCount int
	startedAt  time.Time
	logger     *slog.Logger
}

// NewHealthHandler creates a HealthHandler for a daemon that started at
// startedAt in the given mode.
func NewHealthHandler(mode string, vaultCount int, startedAt time.Time, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:       mode,
		vaultCount: vaultCount,
		startedAt:  startedAt,
		logger:     logger,
	}
}

// HealthCheck responds with the daemon's status.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"vaults":         h.vaultCount,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
