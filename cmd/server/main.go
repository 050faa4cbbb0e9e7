package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/buildnotify/internal/adapter/httpserver"
	"github.com/pscheid92/buildnotify/internal/adapter/longpoll"
	"github.com/pscheid92/buildnotify/internal/adapter/metrics"
	"github.com/pscheid92/buildnotify/internal/adapter/postgres"
	"github.com/pscheid92/buildnotify/internal/adapter/redis"
	"github.com/pscheid92/buildnotify/internal/adapter/websocket"
	"github.com/pscheid92/buildnotify/internal/app"
	"github.com/pscheid92/buildnotify/internal/broadcast"
	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/lifecycle"
	"github.com/pscheid92/buildnotify/internal/platform/config"
	"github.com/pscheid92/buildnotify/internal/platform/logging"
	"github.com/pscheid92/buildnotify/internal/platform/version"
	"github.com/pscheid92/buildnotify/internal/registry"
	"github.com/pscheid92/buildnotify/internal/settings"
)

const shutdownTimeout = 10 * time.Second

type components struct {
	server     *httpserver.Server
	websocket  *websocket.Handler
	longPoll   *longpoll.Transport
	controller *lifecycle.Controller

	stopRelay   context.CancelFunc
	relayDone   <-chan struct{}
	stopJanitor context.CancelFunc
	janitorDone <-chan struct{}
}

func runGracefulShutdown(c *components) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Pending polls would hold Shutdown open until their idle timeout.
		serverDone := make(chan error, 1)
		go func() { serverDone <- c.server.Shutdown(shutdownCtx) }()
		c.longPoll.CloseAll(shutdownCtx)
		c.websocket.CloseAll()
		if err := <-serverDone; err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if c.stopRelay != nil {
			c.stopRelay()
			<-c.relayDone
		}

		c.stopJanitor()
		<-c.janitorDone

		c.controller.Shutdown()
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.DatabaseMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, delivering events on this instance only")
		return nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func settingsRepository(pool *pgxpool.Pool) domain.SettingsRepository {
	if pool == nil {
		return settings.NewMemoryRepository()
	}
	return postgres.NewSettingsRepo(pool)
}

func healthChecks(pool *pgxpool.Pool, redisClient *goredis.Client) []httpserver.HealthCheck {
	var checks []httpserver.HealthCheck
	if pool != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	promRegistry := metrics.NewRegistry()
	connectionMetrics := metrics.NewConnectionMetrics(promRegistry)
	broadcastMetrics := metrics.NewBroadcastMetrics(promRegistry)
	httpMetrics := metrics.NewHTTPMetrics(promRegistry)

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool = setupDB(cfg, metrics.NewDatabaseMetrics(promRegistry))
		defer pool.Close()
		metrics.RegisterPoolGauges(promRegistry, func() (acquired, idle, total int32) {
			stat := pool.Stat()
			return stat.AcquiredConns(), stat.IdleConns(), stat.TotalConns()
		})
	} else {
		slog.Info("DATABASE_URL not set, keeping settings in memory")
	}

	var redisMetrics *metrics.RedisMetrics
	if cfg.RedisURL != "" {
		redisMetrics = metrics.NewRedisMetrics(promRegistry)
	}
	redisClient := setupRedis(context.Background(), cfg, redisMetrics)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	connections := registry.New()
	metrics.RegisterRegistryGauges(promRegistry, connections.Stats)

	controller := lifecycle.NewController(connections, cfg.MaxConnectionsPerUser, connectionMetrics)
	settingsService := settings.NewService(settingsRepository(pool), cfg.SettingsLookupTimeout)
	broadcaster := broadcast.New(connections, settingsService, broadcastMetrics, clock)

	var relay *redis.EventRelay
	var publisher app.EventPublisher
	if redisClient != nil {
		relay = redis.NewEventRelay(redisClient)
		publisher = relay
	}
	appService := app.NewService(broadcaster, publisher, broadcastMetrics)

	c := &components{controller: controller}

	if relay != nil {
		relayCtx, stopRelay := context.WithCancel(context.Background())
		relayDone, err := relay.Start(relayCtx, appService.HandleRelayed)
		if err != nil {
			stopRelay()
			slog.Error("Failed to start event relay", "error", err)
			os.Exit(1)
		}
		c.stopRelay, c.relayDone = stopRelay, relayDone
	}

	c.websocket = websocket.NewHandler(controller,
		websocket.NewOriginPolicy(cfg.AppURL, cfg.ExtraOrigins(), cfg.IsDevelopment()).Check,
		websocket.Options{WriteTimeout: cfg.WSWriteTimeout, PingInterval: cfg.WSPingInterval, Clock: clock},
		connectionMetrics,
	)
	c.longPoll = longpoll.NewTransport(controller,
		longpoll.Options{IdleTimeout: cfg.LongPollIdleTimeout, ResumeGrace: cfg.LongPollResumeGrace, Clock: clock},
		connectionMetrics,
	)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		c.longPoll.Run(janitorCtx)
	}()
	c.stopJanitor, c.janitorDone = stopJanitor, janitorDone

	c.server = httpserver.NewServer(cfg, appService, settingsService,
		httpserver.Transports{WebSocket: c.websocket, LongPoll: c.longPoll},
		metrics.Handler(promRegistry), httpMetrics,
		healthChecks(pool, redisClient),
	)

	done := runGracefulShutdown(c)

	if err := c.server.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Server stopped")
}
