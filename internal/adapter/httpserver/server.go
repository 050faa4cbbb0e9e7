package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/platform/config"
)

type eventSubmitter interface {
	Submit(ctx context.Context, ev domain.Event) error
}

type settingsService interface {
	DisplayTimeoutSeconds(ctx context.Context, user domain.UserID) int
	UpdateDisplayTimeout(ctx context.Context, user domain.UserID, seconds int) error
}

// Transports are the browser-facing notification channels.
type Transports struct {
	WebSocket http.Handler
	LongPoll  http.Handler
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	events   eventSubmitter
	settings settingsService

	transports     Transports
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics

	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the HTTP surface. metricsHandler and httpMetrics may be nil.
func NewServer(cfg *config.Config, events eventSubmitter, settings settingsService, transports Transports, metricsHandler http.Handler, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		events:         events,
		settings:       settings,
		transports:     transports,
		metricsHandler: metricsHandler,
		httpMetrics:    httpMetrics,
		sessionStore:   setupSessionStore(cfg),
		healthChecks:   healthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}
