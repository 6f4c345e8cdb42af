// Package main is the entry point of the Noctua background worker.
//
// The worker runs the periodic maintenance the gamification engine needs
// but no user interaction triggers:
// - expiring quests that were started but never finished
// - decaying streaks whose owners missed a full day
//
// Streak decay honors each user's compassion settings, so a missed
// night can soft-reset a streak instead of wiping it. Events published
// by the jobs feed the Telegram notifier, which keeps quiet hours.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/noctua-health/noctua/config"
	exttelegram "github.com/noctua-health/noctua/internal/infrastructure/external/telegram"
	"github.com/noctua-health/noctua/internal/infrastructure/messaging"
	"github.com/noctua-health/noctua/internal/infrastructure/persistence/postgres"
	"github.com/noctua-health/noctua/internal/infrastructure/persistence/redis"
	"github.com/noctua-health/noctua/internal/infrastructure/scheduler"
	"github.com/noctua-health/noctua/internal/infrastructure/scheduler/jobs"
	"github.com/noctua-health/noctua/internal/interface/telegram"
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
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slogger := setupSlog(cfg)
	slogger.Info("starting noctua worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if !cfg.Jobs.Enabled {
		slogger.Warn("background jobs are disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database")
	conn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	repo := postgres.NewGamificationRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Redis job lock (optional)
	// ─────────────────────────────────────────────────────────────────────────
	// With the lock, several worker replicas can run and a sweep still
	// happens once. Without Redis each replica sweeps, which is safe but
	// noisy.
	var jobLock scheduler.JobLocker
	if !cfg.Redis.Disabled {
		slogger.Info("connecting to redis")
		cache, err := redis.NewCache(redisConfig(cfg))
		if err != nil {
			slogger.Warn("failed to connect to redis, job locking disabled", "error", err)
		} else {
			defer cache.Close()
			jobLock = redis.NewJobLock(cache, lockOwner(cfg))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Event bus and notifier
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = slogger
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() { _ = bus.Close() }()

	// Job events (quest expiry, streak breaks) go straight to users, so
	// the worker carries its own API client and notifier.
	client := exttelegram.NewClient(exttelegram.DefaultClientConfig(cfg.Telegram.Token))
	notifier := telegram.NewNotifier(client, slogger, cfg.App.Location)
	if err := notifier.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe notifier: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Scheduler and jobs
	// ─────────────────────────────────────────────────────────────────────────
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = slogger
	schedConfig.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedConfig)

	expireJob := scheduler.NewLockedJob(jobs.NewExpireQuestsJob(repo, bus, slogger, jobs.ExpireQuestsConfig{
		MaxQuestAge: cfg.Jobs.QuestMaxAge,
		BatchSize:   cfg.Jobs.BatchSize,
	}), jobLock, slogger)
	if err := sched.Register(expireJob, scheduler.NewIntervalSchedule(cfg.Jobs.QuestSweepInterval)); err != nil {
		return fmt.Errorf("failed to register quest expiry job: %w", err)
	}

	decayJob := scheduler.NewLockedJob(jobs.NewStreakDecayJob(repo, bus, slogger, cfg.Jobs.BatchSize), jobLock, slogger)
	decaySchedule := scheduler.NewDailySchedule(cfg.Jobs.StreakDecayHour, cfg.Jobs.StreakDecayMinute)
	if err := sched.Register(decayJob, decaySchedule); err != nil {
		return fmt.Errorf("failed to register streak decay job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Run until shutdown
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	slogger.Info("shutdown signal received")

	if err := sched.Stop(); err != nil {
		slogger.Warn("scheduler stop failed", "error", err)
	}

	slogger.Info("noctua worker stopped")
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

// lockOwner identifies this worker instance in job lock values.
func lockOwner(cfg *config.Config) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-worker@%s", cfg.App.Name, host)
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

	l := slog.New(handler).With("app", cfg.App.Name+"-worker")
	slog.SetDefault(l)
	return l
}
