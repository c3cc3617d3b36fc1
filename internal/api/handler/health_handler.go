package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parkaro/internal/domain"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store  Pinger
	status func() domain.ParkingStatusView
}

func NewHealthHandler(store Pinger, status func() domain.ParkingStatusView) *HealthHandler {
	return &HealthHandler{store: store, status: status}
}

// GET /healthz
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /readyz. A degraded sensor does not make the service unready: the
// coordinator keeps assigning from the ledger view.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "store unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "sensor_degraded": h.status().SensorDegraded})
}
