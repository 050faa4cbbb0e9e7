package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const eventBodyLimit = "64K"

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationMiddleware)
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	authLimiter := newRateLimiter(1, 5)
	eventLimiter := newRateLimiter(s.config.EventRateLimit, s.config.EventRateBurst)

	s.registerHealthRoutes()
	s.registerAuthRoutes(authLimiter)
	s.registerNotificationRoutes()
	s.registerSettingsRoutes()
	s.echo.POST("/api/events", s.handleSubmitEvent, middleware.BodyLimit(eventBodyLimit), eventLimiter, s.requireIngestSecret)
}

func (s *Server) registerNotificationRoutes() {
	if s.transports.WebSocket != nil {
		s.echo.GET("/notifications/ws", echo.WrapHandler(s.transports.WebSocket), s.attachSession)
	}
	if s.transports.LongPoll != nil {
		s.echo.GET("/notifications/poll", echo.WrapHandler(s.transports.LongPoll), s.attachSession)
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
