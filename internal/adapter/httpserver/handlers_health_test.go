package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(name string) HealthCheck {
	return HealthCheck{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) HealthCheck {
	return HealthCheck{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func TestHealthProbes(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		want       healthReport
	}{
		{
			name:       "no dependencies configured",
			wantStatus: http.StatusOK,
			want:       healthReport{Status: "ready"},
		},
		{
			name:       "all dependencies healthy",
			checks:     []HealthCheck{passing("redis"), passing("postgres")},
			wantStatus: http.StatusOK,
			want:       healthReport{Status: "ready", Checks: map[string]string{"redis": "ok", "postgres": "ok"}},
		},
		{
			name:       "redis down",
			checks:     []HealthCheck{failing("redis", "connection refused"), passing("postgres")},
			wantStatus: http.StatusServiceUnavailable,
			want:       healthReport{Status: "unhealthy", Checks: map[string]string{"redis": "failed", "postgres": "ok"}},
		},
		{
			name:       "both down reports each failure",
			checks:     []HealthCheck{failing("redis", "dial tcp redis.internal:6379: refused"), failing("postgres", "database unreachable")},
			wantStatus: http.StatusServiceUnavailable,
			want:       healthReport{Status: "unhealthy", Checks: map[string]string{"redis": "failed", "postgres": "failed"}},
		},
	}

	for _, tt := range tests {
		for _, path := range []string{"/health/startup", "/health/ready"} {
			t.Run(tt.name+" "+path, func(t *testing.T) {
				srv := newTestServer(t, withHealthChecks(tt.checks...))

				rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))

				assert.Equal(t, tt.wantStatus, rec.Code)
				var got healthReport
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.want, got)
				assert.NotContains(t, rec.Body.String(), "redis.internal", "dependency errors are not exposed")
			})
		}
	}
}

func TestHealthProbeBoundsSlowCheck(t *testing.T) {
	slow := HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	srv := newTestServer(t, withHealthChecks(slow))

	start := time.Now()
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/startup", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"failed"}}`, rec.Body.String())
	assert.Less(t, time.Since(start), startupProbeTimeout+time.Second)
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(t, withHealthChecks(failing("redis", "down")))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "buildnotify", body["service"])
	assert.Contains(t, body, "uptime")
}

func TestVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	for _, key := range []string{`"version"`, `"commit"`, `"build_time"`, `"go_version"`} {
		assert.Contains(t, rec.Body.String(), key)
	}
}

func TestMetricsRouteOnlyWhenHandlerSet(t *testing.T) {
	without := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, serve(without, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)

	with := newTestServer(t, withMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})))
	rec := serve(with, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}
