package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkaro/internal/api/response"
	"parkaro/internal/domain"
	"parkaro/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(as *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: as}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var dto domain.RegisterUserDTO
	if !bindJSON(c, &dto) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var dto domain.LoginUserDTO
	if !bindJSON(c, &dto) {
		return
	}
	authResponse, err := h.authService.Login(c.Request.Context(), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse)
}
