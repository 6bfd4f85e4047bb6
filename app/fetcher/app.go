// Package fetcher wires the sync daemon: cron-driven round-robin ingestion
// ticks plus the daily rank-history rollup, sharing one per-mode
// single-flight guard.
package fetcher

import (
	"context"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/history"
	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/logging"
	"github.com/rankline/scorerank/pkg/metrics"
	"github.com/rankline/scorerank/pkg/osuapi"
	"github.com/rankline/scorerank/pkg/redis"
	"github.com/rankline/scorerank/pkg/syncer"
	"github.com/rankline/scorerank/pkg/tracker"
	"github.com/rankline/scorerank/pkg/utils"
)

// App is the sync daemon.
type App struct {
	Coordinator *syncer.Coordinator
	Compactor   *history.Compactor

	Redis   *redis.Client
	Tracker *tracker.DB

	// Cron drives sync ticks and the daily rollup, per TickSpec and
	// CompactionSpec.
	Cron           *cron.Cron
	TickSpec       string
	CompactionSpec string

	Logger  *zap.Logger
	Metrics *http.Server
}

// Initialize initializes the App.
func Initialize(ctx context.Context) (*App, error) {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	clientID := utils.Env("OSU_CLIENT_ID", "")
	clientSecret := utils.Env("OSU_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		logger.Fatal("OSU_CLIENT_ID and OSU_CLIENT_SECRET must be set")
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to Redis", zap.Error(err))
	}

	dsn := utils.Env("POSTGRES_DSN", "host=localhost user=scorerank password=scorerank dbname=scorerank sslmode=disable")
	trackerDB, err := tracker.Open(dsn, logger)
	if err != nil {
		logger.Fatal("Unable to connect to Postgres", zap.Error(err))
	}

	source := osuapi.New(osuapi.Opts{
		BaseURL:      utils.Env("OSU_API_URL", osuapi.DefaultBaseURL),
		TokenURL:     utils.Env("OSU_TOKEN_URL", osuapi.DefaultTokenURL),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Timeout:      utils.EnvDuration("OSU_API_TIMEOUT", 15*time.Second),
	})

	lb := leaderboard.New(redisClient.Unwrap())
	pool := pond.NewPool(utils.EnvInt("COMPACTOR_WORKERS", 8))

	app := &App{
		Coordinator:    syncer.New(source, lb, trackerDB, logger),
		Compactor:      history.NewCompactor(lb, trackerDB, pool, logger),
		Redis:          redisClient,
		Tracker:        trackerDB,
		TickSpec:       "@every " + utils.Env("SYNC_TICK", "8m"),
		CompactionSpec: utils.Env("COMPACTION_SPEC", "0 0 3 * * *"),
		Logger:         logger,
		Metrics:        metrics.Server(utils.Env("METRICS_ADDR", ":9101")),
	}

	if err := app.SetupScheduler(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// SetupScheduler sets up the cron scheduler: one mode per sync tick, one
// rollup per day.
func (a *App) SetupScheduler(ctx context.Context) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if _, err := a.Cron.AddFunc(a.TickSpec, func() {
		a.Coordinator.TickNext(ctx)
	}); err != nil {
		return err
	}

	if _, err := a.Cron.AddFunc(a.CompactionSpec, func() {
		a.Coordinator.CompactAll(ctx, a.Compactor)
	}); err != nil {
		return err
	}

	return nil
}

// Start runs the scheduler until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.Cron.Start()
	a.Logger.Info("Scheduler started",
		zap.String("tickSpec", a.TickSpec),
		zap.String("compactionSpec", a.CompactionSpec))

	go func() { _ = a.Metrics.ListenAndServe() }()

	<-ctx.Done()

	// Let an in-flight cycle finish its current page writes.
	stopCtx := a.Cron.Stop()
	<-stopCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Metrics.Shutdown(shutdownCtx)

	if err := a.Redis.Close(); err != nil {
		a.Logger.Error("Failed to close Redis connection", zap.Error(err))
	}
	if err := a.Tracker.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
}
