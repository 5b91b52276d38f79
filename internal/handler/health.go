package handler

import (
	"context"
	"net/http"

	"github.com/insho/insho-api/internal/service"
)

// HealthChecker is implemented by service.HealthService.
type HealthChecker interface {
	Check(ctx context.Context) *service.Health
}

type HealthHandler struct {
	health HealthChecker
}

func NewHealthHandler(health HealthChecker) *HealthHandler {
	return &HealthHandler{health: health}
}

// HandleHealth answers 200 when the database is reachable, 503 otherwise.
//
// HTTP: GET /api/v1/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	res := h.health.Check(r.Context())
	status := http.StatusOK
	if res.Status != service.HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}
