// Package httpserver exposes the coordination engine over HTTP using echo.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/pscheid92/studysync/internal/domain"
	"github.com/pscheid92/studysync/internal/engine"
	"github.com/pscheid92/studysync/internal/errors"
)

// SessionService is the engine surface the handlers depend on.
type SessionService interface {
	Create(ctx context.Context, creatorID string, params engine.CreateParams) (domain.SessionView, error)
	Get(ctx context.Context, sessionID uuid.UUID) (domain.SessionView, error)
	ListOpen(ctx context.Context, filter domain.ListFilter) ([]domain.SessionView, error)
	ListByCreator(ctx context.Context, userID string) ([]domain.SessionView, error)
	ListJoined(ctx context.Context, userID string) ([]domain.SessionView, error)
	RequestToJoin(ctx context.Context, sessionID uuid.UUID, userID string) (domain.SessionView, error)
	AcceptRequest(ctx context.Context, sessionID uuid.UUID, actorID, targetID string) (domain.SessionView, error)
	DeclineRequest(ctx context.Context, sessionID uuid.UUID, actorID, targetID string) (domain.SessionView, error)
	KickParticipant(ctx context.Context, sessionID uuid.UUID, actorID, targetID string) (domain.SessionView, error)
	Delete(ctx context.Context, sessionID uuid.UUID, actorID string) error
}

// ProfileService records display name updates from the auth integration.
type ProfileService interface {
	UpsertProfile(ctx context.Context, userID, displayName string) error
}

// Pinger reports backend liveness for the readiness probe.
type Pinger func(ctx context.Context) error

type Server struct {
	echo     *echo.Echo
	service  SessionService
	profiles ProfileService
	pingers  map[string]Pinger
	port     string
}

func New(service SessionService, profiles ProfileService, port string, pingers map[string]Pinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		service:  service,
		profiles: profiles,
		pingers:  pingers,
		port:     port,
	}

	e.Use(echomw.Recover())
	e.Use(correlationMiddleware())
	e.Use(requestLogger())
	e.Use(errors.Middleware())
	s.registerRoutes()

	return s
}

func (s *Server) Start() error {
	if err := s.echo.Start(":" + s.port); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

const readyCheckTimeout = 2 * time.Second
