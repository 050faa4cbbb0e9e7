package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/platform/config"
)

// --- Mock implementations ---

type mockEventSubmitter struct {
	submitFn func(ctx context.Context, ev domain.Event) error
}

func (m *mockEventSubmitter) Submit(ctx context.Context, ev domain.Event) error {
	if m.submitFn != nil {
		return m.submitFn(ctx, ev)
	}
	return nil
}

type mockSettingsService struct {
	displayTimeoutFn func(ctx context.Context, user domain.UserID) int
	updateFn         func(ctx context.Context, user domain.UserID, seconds int) error
}

func (m *mockSettingsService) DisplayTimeoutSeconds(ctx context.Context, user domain.UserID) int {
	if m.displayTimeoutFn != nil {
		return m.displayTimeoutFn(ctx, user)
	}
	return domain.DefaultDisplayTimeoutSeconds
}

func (m *mockSettingsService) UpdateDisplayTimeout(ctx context.Context, user domain.UserID, seconds int) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, user, seconds)
	}
	return nil
}

// --- Test helpers ---

const (
	testIngestSecret  = "ingest-secret-0123456789"
	testSessionSecret = "session-secret-0123456789abcdefghijkl"
)

type testServerOptions struct {
	events       eventSubmitter
	settings     settingsService
	transports   Transports
	metrics      http.Handler
	healthChecks []HealthCheck
	appEnv       string
}

func newTestServer(t *testing.T, opts ...func(*testServerOptions)) *Server {
	t.Helper()

	o := &testServerOptions{
		events:   &mockEventSubmitter{},
		settings: &mockSettingsService{},
		appEnv:   "development",
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := &config.Config{
		AppEnv:            o.appEnv,
		Port:              "0",
		SessionSecret:     testSessionSecret,
		EventIngestSecret: testIngestSecret,
		SessionMaxAge:     time.Hour,
		EventRateLimit:    100,
		EventRateBurst:    100,
	}
	return NewServer(cfg, o.events, o.settings, o.transports, o.metrics, nil, o.healthChecks)
}

func withEvents(events eventSubmitter) func(*testServerOptions) {
	return func(o *testServerOptions) { o.events = events }
}

func withSettings(settings settingsService) func(*testServerOptions) {
	return func(o *testServerOptions) { o.settings = settings }
}

func withTransports(transports Transports) func(*testServerOptions) {
	return func(o *testServerOptions) { o.transports = transports }
}

func withMetricsHandler(h http.Handler) func(*testServerOptions) {
	return func(o *testServerOptions) { o.metrics = h }
}

func withHealthChecks(checks ...HealthCheck) func(*testServerOptions) {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func withAppEnv(env string) func(*testServerOptions) {
	return func(o *testServerOptions) { o.appEnv = env }
}

// sessionCookie returns a cookie carrying a session for user.
func sessionCookie(t *testing.T, srv *Server, user string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyUserID] = user
	require.NoError(t, session.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
