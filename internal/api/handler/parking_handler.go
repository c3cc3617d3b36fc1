package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkaro/internal/api/middleware"
	"parkaro/internal/api/response"
	"parkaro/internal/apperr"
	"parkaro/internal/domain"
	"parkaro/internal/service"
)

type ParkingSessionHandler struct {
	sessions *service.SessionService
}

func NewParkingSessionHandler(sessions *service.SessionService) *ParkingSessionHandler {
	return &ParkingSessionHandler{sessions: sessions}
}

// POST /api/v1/scan
func (h *ParkingSessionHandler) Scan(c *gin.Context) {
	var req domain.ScanRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sessions.Scan(c.Request.Context(), req.QRCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if res.Type == domain.ScanCheckIn {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// POST /api/v1/sessions/check-in
func (h *ParkingSessionHandler) CheckIn(c *gin.Context) {
	var req domain.CheckInRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sessions.CheckIn(c.Request.Context(), req.QRCode, req.StartChargeLevel)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /api/v1/sessions/check-out
func (h *ParkingSessionHandler) CheckOut(c *gin.Context) {
	var req domain.CheckOutRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sessions.CheckOut(c.Request.Context(), req.QRCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/v1/parking-status
func (h *ParkingSessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Status())
}

// GET /api/v1/me/active-session
func (h *ParkingSessionHandler) MyActiveSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperr.ErrUnauthorized)
		return
	}
	session, err := h.sessions.UserActiveSession(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /api/v1/admin/sessions?userId=&status=
func (h *ParkingSessionHandler) FindParkingSessions(c *gin.Context) {
	var filter domain.ParkingSessionFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, apperr.Wrap(apperr.KindValidation, "invalid query: "+err.Error(), err))
		return
	}
	sessions, err := h.sessions.FindSessions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	if sessions == nil {
		sessions = []domain.ParkingSession{}
	}
	c.JSON(http.StatusOK, sessions)
}
