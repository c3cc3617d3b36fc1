package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkaro/internal/api/handler"
	"parkaro/internal/api/middleware"
	"parkaro/internal/charging"
	"parkaro/internal/domain"
	"parkaro/internal/notify"
	"parkaro/internal/repository"
	"parkaro/internal/service"
)

type RouterDeps struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
	Charging *charging.Service
	Hub      *notify.Hub
	Events   repository.SensorEventLogRepository
	Store    handler.Pinger
	AuthMw   *middleware.AuthMiddleware
	Logger   *zerolog.Logger
}

func SetupRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	status := d.Sessions.Status

	healthH := handler.NewHealthHandler(d.Store, status)
	r.GET("/healthz", healthH.Live)
	r.GET("/readyz", healthH.Ready)

	// Display clients connect without a token.
	wsHandler := handler.NewWebSocketHandler(d.Hub, status, d.Logger)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(d.Auth)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	sessionH := handler.NewParkingSessionHandler(d.Sessions)
	chargingH := handler.NewChargingHandler(d.Charging, d.Auth)

	// Station endpoints: the QR code or charging session id is the credential.
	v1 := r.Group("/api/v1")
	{
		v1.GET("/parking-status", sessionH.Status)
		v1.POST("/scan", sessionH.Scan)

		sessionRoutes := v1.Group("/sessions")
		{
			sessionRoutes.POST("/check-in", sessionH.CheckIn)
			sessionRoutes.POST("/check-out", sessionH.CheckOut)
		}

		chargingRoutes := v1.Group("/charging")
		{
			chargingRoutes.POST("/update", chargingH.UpdateLevel)
			chargingRoutes.POST("/stop", chargingH.Stop)
		}
	}

	me := v1.Group("/me")
	me.Use(d.AuthMw.Authenticate())
	{
		me.GET("/active-session", sessionH.MyActiveSession)
		me.GET("/charging-status", chargingH.MyStatus)
		me.POST("/charging/start", chargingH.Start)
	}

	admin := v1.Group("/admin")
	admin.Use(d.AuthMw.Authenticate(), d.AuthMw.AuthorizeRole(domain.RoleAdmin, domain.RoleOperator))
	{
		admin.GET("/sessions", sessionH.FindParkingSessions)
		admin.GET("/sensor-events", handler.NewSensorEventHandler(d.Events).Recent)
	}
	return r
}
