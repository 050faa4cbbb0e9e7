package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/buildnotify/internal/domain"
	apperrors "github.com/pscheid92/buildnotify/internal/platform/errors"
)

type settingsPayload struct {
	DisplayTimeoutSeconds *int `json:"displayTimeoutSeconds"`
}

func (s *Server) registerSettingsRoutes() {
	s.echo.GET("/api/settings", s.handleGetSettings, s.requireSession)
	s.echo.PUT("/api/settings", s.handlePutSettings, s.requireSession)
}

func (s *Server) handleGetSettings(c echo.Context) error {
	user, ok := c.Get(contextKeyUserID).(domain.UserID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	seconds := s.settings.DisplayTimeoutSeconds(c.Request().Context(), user)
	if err := c.JSON(http.StatusOK, settingsPayload{DisplayTimeoutSeconds: &seconds}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePutSettings(c echo.Context) error {
	user, ok := c.Get(contextKeyUserID).(domain.UserID)
	if !ok {
		return apperrors.InternalError("invalid user ID in context", nil)
	}

	var req settingsPayload
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.DisplayTimeoutSeconds == nil {
		return apperrors.ValidationError("displayTimeoutSeconds is required")
	}

	if err := s.settings.UpdateDisplayTimeout(c.Request().Context(), user, *req.DisplayTimeoutSeconds); err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, req); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
