package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"parkaro/internal/api/middleware"
	"parkaro/internal/api/response"
	"parkaro/internal/apperr"
	"parkaro/internal/charging"
	"parkaro/internal/domain"
)

// QRResolver maps a scanned QR code to its user.
type QRResolver interface {
	LookupQR(ctx context.Context, qrCode string) (*domain.User, error)
}

type ChargingHandler struct {
	charging *charging.Service
	users    QRResolver
}

func NewChargingHandler(chargingService *charging.Service, users QRResolver) *ChargingHandler {
	return &ChargingHandler{charging: chargingService, users: users}
}

// POST /api/v1/charging/update
func (h *ChargingHandler) UpdateLevel(c *gin.Context) {
	var req domain.UpdateChargeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.charging.UpdateLevel(c.Request.Context(), req.SessionID, *req.ChargeLevel)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/v1/charging/stop
func (h *ChargingHandler) Stop(c *gin.Context) {
	var req domain.StopChargingRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.LookupQR(c.Request.Context(), req.QRCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.charging.StopOwned(c.Request.Context(), req.SessionID, user.ID); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": req.SessionID, "message": "Charging stopped"})
}

// GET /api/v1/me/charging-status
func (h *ChargingHandler) MyStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperr.ErrUnauthorized)
		return
	}
	view, err := h.charging.Status(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// POST /api/v1/me/charging/start
func (h *ChargingHandler) Start(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperr.ErrUnauthorized)
		return
	}
	var req domain.StartChargingRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	cs, err := h.charging.Start(c.Request.Context(), userID, req.StartChargeLevel)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, cs)
}
