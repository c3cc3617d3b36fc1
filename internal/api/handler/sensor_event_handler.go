package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parkaro/internal/api/response"
	"parkaro/internal/apperr"
	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type SensorEventHandler struct {
	events repository.SensorEventLogRepository
}

func NewSensorEventHandler(events repository.SensorEventLogRepository) *SensorEventHandler {
	return &SensorEventHandler{events: events}
}

// GET /api/v1/admin/sensor-events?limit=N
func (h *SensorEventHandler) Recent(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEventLimit {
			response.Error(c, apperr.Newf(apperr.KindValidation, "limit must be between 1 and %d", maxEventLimit))
			return
		}
		limit = n
	}

	events, err := h.events.Recent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, apperr.Storage("list sensor events", err))
		return
	}
	if events == nil {
		events = []domain.SensorEventLog{}
	}
	c.JSON(http.StatusOK, events)
}
