package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkaro/internal/api/response"
	"parkaro/internal/apperr"
	"parkaro/internal/service"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	UserIDKey               = "userID"
	UserRoleKey             = "userRole"
	UsernameKey             = "username"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
	logger    *zerolog.Logger
}

func NewAuthMiddleware(validator TokenValidator, logger *zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, logger: logger}
}

// Authenticate validates the bearer token and stores the caller's identity
// in the gin context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeaderKey)
		if authHeader == "" {
			response.Error(c, apperr.New(apperr.KindUnauthorized, "missing authorization header"))
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 || !strings.EqualFold(fields[0], AuthorizationTypeBearer) {
			response.Error(c, apperr.New(apperr.KindUnauthorized, "invalid authorization header format"))
			return
		}

		claims, err := m.validator.ValidateToken(fields[1])
		if err != nil {
			response.Error(c, err)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserRoleKey, claims.Role)
		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

// AuthorizeRole lets the request through only for the given roles.
// Authenticate must run first.
func (m *AuthMiddleware) AuthorizeRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(UserRoleKey)
		if userRole == "" {
			m.logger.Error().Str("path", c.FullPath()).Msg("role check without an authenticated user")
			response.Error(c, apperr.New(apperr.KindForbidden, "access denied"))
			return
		}
		if !slices.Contains(requiredRoles, userRole) {
			m.logger.Info().Str("role", userRole).Strs("required", requiredRoles).Str("path", c.FullPath()).
				Msg("role not permitted")
			response.Error(c, apperr.New(apperr.KindForbidden, "access denied"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller set by Authenticate.
func UserID(c *gin.Context) (int, bool) {
	id, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := id.(int)
	return userID, ok
}
