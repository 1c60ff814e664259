package handlers

import (
	"net/http"
	"time"

	"github.com/avasa-home/checkout/internal/platform/httpx"
)

var startTime = time.Now()

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct{}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports readiness to accept traffic.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
