package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/studysync/internal/domain"
	"github.com/pscheid92/studysync/internal/engine"
	"github.com/pscheid92/studysync/internal/errors"
)

type createSessionRequest struct {
	Title           string `json:"title"`
	Module          string `json:"module"`
	Year            string `json:"year"`
	Description     string `json:"description"`
	Preferences     string `json:"preferences"`
	MaxParticipants int    `json:"max_participants"`
	DurationMinutes int    `json:"duration_minutes"`
	ScheduledStart  string `json:"scheduled_start"`
	StartNow        bool   `json:"start_now"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}

	params := engine.CreateParams{
		Title:           req.Title,
		Module:          req.Module,
		Year:            req.Year,
		Description:     req.Description,
		Preferences:     req.Preferences,
		Capacity:        req.MaxParticipants,
		DurationMinutes: req.DurationMinutes,
		StartNow:        req.StartNow,
	}

	if !req.StartNow {
		if req.ScheduledStart == "" {
			return errors.ValidationError("scheduled_start is required unless start_now is set")
		}
		start, err := time.Parse(time.RFC3339, req.ScheduledStart)
		if err != nil {
			return errors.ValidationError("scheduled_start must be RFC 3339").WithField("scheduled_start", req.ScheduledStart)
		}
		params.ScheduledStart = start
	}

	view, err := s.service.Create(c.Request().Context(), actorID(c), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	view, err := s.service.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleListOpenSessions(c echo.Context) error {
	filter := domain.ListFilter{
		Year:   c.QueryParam("year"),
		Module: c.QueryParam("module"),
	}

	views, err := s.service.ListOpen(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) handleListMySessions(c echo.Context) error {
	views, err := s.service.ListByCreator(c.Request().Context(), actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) handleListJoinedSessions(c echo.Context) error {
	views, err := s.service.ListJoined(c.Request().Context(), actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) handleRequestToJoin(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	view, err := s.service.RequestToJoin(c.Request().Context(), id, actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleAcceptRequest(c echo.Context) error {
	return s.handleRosterChange(c, s.service.AcceptRequest)
}

func (s *Server) handleDeclineRequest(c echo.Context) error {
	return s.handleRosterChange(c, s.service.DeclineRequest)
}

func (s *Server) handleKickParticipant(c echo.Context) error {
	return s.handleRosterChange(c, s.service.KickParticipant)
}

type rosterOp func(ctx context.Context, sessionID uuid.UUID, actorID, targetID string) (domain.SessionView, error)

func (s *Server) handleRosterChange(c echo.Context, op rosterOp) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	target, err := targetUserID(c)
	if err != nil {
		return err
	}

	view, err := op(c.Request().Context(), id, actorID(c), target)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	if err := s.service.Delete(c.Request().Context(), id, actorID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errors.ValidationError("invalid session id").WithField("id", c.Param("id"))
	}
	return id, nil
}

func targetUserID(c echo.Context) (string, error) {
	userID := c.Param("userId")
	if userID == "" {
		return "", errors.ValidationError("user id is required")
	}
	return userID, nil
}
