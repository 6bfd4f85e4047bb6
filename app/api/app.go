package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/rankline/scorerank/app/api/types"
	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/logging"
	"github.com/rankline/scorerank/pkg/query"
	"github.com/rankline/scorerank/pkg/redis"
	"github.com/rankline/scorerank/pkg/tracker"
	"github.com/rankline/scorerank/pkg/utils"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
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

	lb := leaderboard.New(redisClient.Unwrap())

	return &types.App{
		Redis:   redisClient,
		Tracker: trackerDB,
		Query:   query.New(lb, trackerDB, trackerDB),
		Logger:  logger,
	}
}
