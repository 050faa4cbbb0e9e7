package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/lifecycle"
	apperrors "github.com/pscheid92/buildnotify/internal/platform/errors"
)

// Session keys
const (
	sessionName      = "buildnotify-session"
	sessionKeyUserID = "user_id"

	contextKeyUserID = "userID"
	maxUserIDLength  = 255
)

// Sessions are minted by the hosting environment, which shares SESSION_SECRET.
// The development login stands in for it locally.
func (s *Server) registerAuthRoutes(rateLimiter echo.MiddlewareFunc) {
	if s.config.IsDevelopment() {
		s.echo.POST("/auth/dev-login", s.handleDevLogin, rateLimiter)
	}
	s.echo.POST("/auth/logout", s.handleLogout, rateLimiter, s.requireSession)
}

// sessionUser returns the user of the request's session, if it has one.
func (s *Server) sessionUser(c echo.Context) (domain.UserID, bool) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return "", false
	}
	userID, ok := session.Values[sessionKeyUserID].(string)
	if !ok || userID == "" {
		return "", false
	}
	return domain.UserID(userID), true
}

// attachSession makes the session user available to the connection lifecycle.
// Requests without a session pass through; the lifecycle refuses them on open.
func (s *Server) attachSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if user, ok := s.sessionUser(c); ok {
			ctx := lifecycle.WithCredentials(c.Request().Context(), lifecycle.Credentials{UserID: user})
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(contextKeyUserID, user)
		}
		return next(c)
	}
}

func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := s.sessionUser(c)
		if !ok {
			return apperrors.UnauthorizedError("authentication required")
		}
		c.Set(contextKeyUserID, user)
		return next(c)
	}
}

type devLoginRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleDevLogin(c echo.Context) error {
	var req devLoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || len(req.UserID) > maxUserIDLength {
		return apperrors.ValidationError("userId is required").WithField("max_length", maxUserIDLength)
	}

	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyUserID] = req.UserID
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	slog.InfoContext(c.Request().Context(), "Development login", "user_id", req.UserID)
	if err := c.NoContent(http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	delete(session.Values, sessionKeyUserID)
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to clear session", err)
	}

	if err := c.NoContent(http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}
