package httpserver

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/studysync/internal/errors"
	"github.com/pscheid92/studysync/internal/platform/correlation"
)

const actorHeader = "X-User-ID"

// requestLogger logs one line per request. Health and metrics probes are
// skipped to keep the log readable.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/health/live" || path == "/health/ready" || path == "/metrics" {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			slog.InfoContext(c.Request().Context(), "Request handled",
				"method", c.Request().Method,
				"path", path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return err
		}
	}
}

// correlationMiddleware stamps every request with a correlation id and
// echoes it back so clients can reference it in bug reports.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-Correlation-ID")
			if id == "" {
				id = correlation.NewID()
			}

			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Correlation-ID", id)

			return next(c)
		}
	}
}

// requireActor extracts the authenticated user id set by the upstream auth
// proxy. Requests without it never reach the handlers.
func requireActor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actorID := c.Request().Header.Get(actorHeader)
			if actorID == "" {
				return errors.UnauthorizedError("missing user identity")
			}

			c.Set("actorID", actorID)
			return next(c)
		}
	}
}

func actorID(c echo.Context) string {
	id, _ := c.Get("actorID").(string)
	return id
}
