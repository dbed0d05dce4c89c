package httpserver

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labstack/echo/v4"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/health/live", s.handleLive)
	s.echo.GET("/health/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.PUT("/api/profile", s.handleUpsertProfile, requireActor())

	api := s.echo.Group("/api/sessions", requireActor())
	api.POST("", s.handleCreateSession)
	api.GET("", s.handleListOpenSessions)
	api.GET("/mine", s.handleListMySessions)
	api.GET("/joined", s.handleListJoinedSessions)
	api.GET("/:id", s.handleGetSession)
	api.DELETE("/:id", s.handleDeleteSession)
	api.POST("/:id/request", s.handleRequestToJoin)
	api.POST("/:id/accept/:userId", s.handleAcceptRequest)
	api.POST("/:id/decline/:userId", s.handleDeclineRequest)
	api.POST("/:id/kick/:userId", s.handleKickParticipant)
}
