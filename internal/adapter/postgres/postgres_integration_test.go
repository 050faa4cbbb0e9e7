package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/domain"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("buildnotify"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	testPool, err = Connect(ctx, connStr, metrics.NewDatabaseMetrics(prometheus.NewRegistry()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to test database: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	if err := RunMigrationsWithLock(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		testPool.Close()
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to terminate postgres container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Cleanup(func() {
		if _, err := testPool.Exec(context.Background(), "TRUNCATE user_notification_settings"); err != nil {
			t.Logf("Failed to truncate tables: %v", err)
		}
	})
	return testPool
}

func TestSettingsRepo_NotFound(t *testing.T) {
	repo := NewSettingsRepo(setupTestDB(t))

	_, err := repo.GetDisplayTimeout(context.Background(), "nobody")

	assert.ErrorIs(t, err, domain.ErrSettingsNotFound)
}

func TestSettingsRepo_SetAndGet(t *testing.T) {
	repo := NewSettingsRepo(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SetDisplayTimeout(ctx, "alice", "30"))
	v, err := repo.GetDisplayTimeout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "30", v)

	require.NoError(t, repo.SetDisplayTimeout(ctx, "alice", "45"))
	v, err = repo.GetDisplayTimeout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "45", v)
}

func TestSettingsRepo_KeepsMalformedValues(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSettingsRepo(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO user_notification_settings (user_id, display_timeout) VALUES ('legacy', 'bogus')`)
	require.NoError(t, err)

	v, err := repo.GetDisplayTimeout(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "bogus", v)
}

func TestRunMigrationsWithLock_Idempotent(t *testing.T) {
	pool := setupTestDB(t)

	require.NoError(t, RunMigrationsWithLock(context.Background(), pool))
}

func TestRunMigrationsWithLock_Concurrent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	errs := make(chan error, 3)
	for range 3 {
		go func() { errs <- RunMigrationsWithLock(ctx, pool) }()
	}
	for range 3 {
		assert.NoError(t, <-errs)
	}
}
