package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"reader-gateway/internal/models"
	"reader-gateway/internal/services"
	"reader-gateway/internal/workers"
)

// HealthHandler reports gateway liveness and probes the assistant backend
type HealthHandler struct {
	client   services.AssistantClientInterface
	sessions *services.SessionService
	pool     *workers.WorkerPool
	logger   *log.Logger
}

// NewHealthHandler creates a new health handler. The worker pool may be nil
// when no background workers were started.
func NewHealthHandler(client services.AssistantClientInterface, sessions *services.SessionService, pool *workers.WorkerPool, logger *log.Logger) *HealthHandler {
	return &HealthHandler{
		client:   client,
		sessions: sessions,
		pool:     pool,
		logger:   logger,
	}
}

// GatewayHealthResponse describes the gateway's own state
type GatewayHealthResponse struct {
	Status   string                `json:"status"`
	Service  string                `json:"service"`
	Sessions int                   `json:"sessions"`
	Workers  []workers.WorkerStats `json:"workers,omitempty"`
}

// Health reports the gateway's own liveness
// @Summary Gateway health
// @Description Report gateway liveness, live session count, and worker statistics
// @Tags health
// @Produce json
// @Success 200 {object} GatewayHealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := GatewayHealthResponse{
		Status:   "healthy",
		Service:  "reader-gateway",
		Sessions: h.sessions.Count(),
	}
	if h.pool != nil {
		response.Workers = h.pool.GetAllStats()
	}

	h.sendJSON(w, http.StatusOK, response)
}

// BackendHealth probes the assistant backend
// @Summary Assistant backend health
// @Description Check whether the assistant backend is reachable and healthy
// @Tags health
// @Produce json
// @Success 200 {object} models.BasicResponse
// @Failure 503 {object} models.BasicResponse
// @Router /health/backend [get]
func (h *HealthHandler) BackendHealth(w http.ResponseWriter, r *http.Request) {
	healthy, err := h.client.HealthCheck(r.Context())
	if err != nil {
		h.logger.Printf("Backend health check failed: %v", err)
		h.sendJSON(w, http.StatusServiceUnavailable, models.BasicResponse{
			Message: "Assistant backend is not reachable: " + err.Error(),
			Status:  "error",
		})
		return
	}

	if !healthy {
		h.sendJSON(w, http.StatusServiceUnavailable, models.BasicResponse{
			Message: "Assistant backend reported an unhealthy state",
			Status:  "error",
		})
		return
	}

	h.sendJSON(w, http.StatusOK, models.BasicResponse{
		Message: "Assistant backend is running",
		Status:  "success",
	})
}

func (h *HealthHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}
