package httpserver

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/buildnotify/internal/domain"
	apperrors "github.com/pscheid92/buildnotify/internal/platform/errors"
)

func (s *Server) requireIngestSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.EventIngestSecret)) != 1 {
			return apperrors.UnauthorizedError("invalid ingest credentials")
		}
		return next(c)
	}
}

func (s *Server) handleSubmitEvent(c echo.Context) error {
	var ev domain.Event
	if err := bindJSON(c, &ev); err != nil {
		return err
	}

	if err := s.events.Submit(c.Request().Context(), ev); err != nil {
		return err
	}

	if err := c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
