package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/studysync/internal/errors"
)

type upsertProfileRequest struct {
	DisplayName string `json:"display_name"`
}

func (s *Server) handleUpsertProfile(c echo.Context) error {
	var req upsertProfileRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return errors.ValidationError("display_name is required")
	}

	if err := s.profiles.UpsertProfile(c.Request().Context(), actorID(c), displayName); err != nil {
		return errors.InternalError("failed to update profile", err)
	}
	return c.NoContent(http.StatusNoContent)
}
