// Package main is the entry point of the Noctua Telegram bot.
//
// Noctua rewards the small nightly habits of sleep therapy - checking in,
// keeping a diary, winding down - with XP, streaks, quests, badges, and a
// growing owl companion. The gamification is gentle on purpose: missed
// days can soft-reset instead of wiping progress, and the bot never
// nags during sleeping hours.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: gamification rules with no external dependencies
// - Application: the engine orchestrating all operations
// - Infrastructure: PostgreSQL, Redis, event bus, Telegram API client
// - Interface: Telegram bot handlers, HTTP health endpoints
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/noctua-health/noctua/config"
	app "github.com/noctua-health/noctua/internal/application/gamification"
	"github.com/noctua-health/noctua/internal/infrastructure/messaging"
	"github.com/noctua-health/noctua/internal/infrastructure/persistence/postgres"
	"github.com/noctua-health/noctua/internal/infrastructure/persistence/redis"
	httpserver "github.com/noctua-health/noctua/internal/interface/http"
	"github.com/noctua-health/noctua/internal/interface/telegram"
	"github.com/noctua-health/noctua/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Logging
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupSlog(cfg)
	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	slogger.Info("starting noctua bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database")
	conn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slogger.Info("closing database connection")
		conn.Close()
	}()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Migrations
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("running database migrations")
	migrator := postgres.NewMigrator(conn, postgres.GetMigrations())
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	var profiles app.ProfileCacheStore

	if !cfg.Redis.Disabled {
		slogger.Info("connecting to redis")
		cache, err = redis.NewCache(redisConfig(cfg))
		if err != nil {
			slogger.Warn("failed to connect to redis, profile caching disabled", "error", err)
			cache = nil
		} else {
			defer cache.Close()
			profiles = redis.NewProfileCache(cache)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Event bus
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = slogger
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		slogger.Info("closing event bus")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Application layer
	// ─────────────────────────────────────────────────────────────────────────
	repo := postgres.NewGamificationRepository(conn)
	engine := app.NewEngine(repo, bus, profiles, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. Telegram bot and notifier
	// ─────────────────────────────────────────────────────────────────────────
	botConfig := telegram.DefaultBotConfig(cfg.Telegram.Token)
	botConfig.PollingTimeout = int(cfg.Telegram.PollingTimeout.Seconds())
	botConfig.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botConfig.Debug = cfg.App.Debug
	botConfig.Logger = slogger

	bot, err := telegram.NewBot(botConfig, engine)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	if cache != nil {
		bot.SetRateLimiter(redis.NewRateLimiter(cache, redis.DefaultCommandLimit))
	}

	notifier := telegram.NewNotifier(bot.Client(), slogger, cfg.App.Location)
	if err := notifier.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe notifier: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP health server
	// ─────────────────────────────────────────────────────────────────────────
	var srv *httpserver.Server
	var srvErr <-chan error

	if cfg.HTTP.Enabled {
		httpConfig := httpserver.DefaultConfig()
		httpConfig.Host = cfg.HTTP.Host
		httpConfig.Port = cfg.HTTP.Port

		srv = httpserver.NewServer(httpConfig, log)
		srv.AddCheck("postgres", conn.Ping)
		if cache != nil {
			srv.AddCheck("redis", cache.Ping)
		}
		srvErr = srv.StartAsync()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. Run until shutdown
	// ─────────────────────────────────────────────────────────────────────────
	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Start(ctx)
	}()

	botStopped := false
	select {
	case <-ctx.Done():
		slogger.Info("shutdown signal received")
	case err := <-botErr:
		botStopped = true
		if err != nil {
			return fmt.Errorf("bot stopped: %w", err)
		}
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slogger.Warn("http server shutdown failed", "error", err)
		}
	}

	// Wait for in-flight update handlers to drain.
	if !botStopped {
		select {
		case <-botErr:
		case <-shutdownCtx.Done():
			slogger.Warn("shutdown timeout exceeded, exiting anyway")
		}
	}

	slogger.Info("noctua bot stopped")
	return nil
}

// connectDatabase prefers the full connection URL and falls back to
// component-based config for local development.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.MaxConns = cfg.Database.MaxConns
	pgCfg.MinConns = cfg.Database.MinConns
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout
	return postgres.NewConnection(ctx, pgCfg)
}

func redisConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return rc
}

func setupSlog(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Observability.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	l := slog.New(handler).With("app", cfg.App.Name)
	slog.SetDefault(l)
	return l
}
