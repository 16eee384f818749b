package handlers

import (
	"net/http"

	"hpcgateway/pkg/api"
)

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is a readiness probe.
// It checks if the service is ready to accept traffic (e.g., DB is connected).
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.respondJson(w, http.StatusServiceUnavailable, api.ErrorResponse{
			Message: "Database unavailable",
			Error:   "PersistenceFailed",
		})
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
