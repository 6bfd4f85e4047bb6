package types

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/query"
	"github.com/rankline/scorerank/pkg/redis"
	"github.com/rankline/scorerank/pkg/tracker"
)

// App wires the query API server.
type App struct {
	Redis   *redis.Client
	Tracker *tracker.DB
	Query   *query.Service

	// Zap Logger
	Logger *zap.Logger

	// Server is the public ranking API; Metrics serves /metrics separately.
	Server  *http.Server
	Metrics *http.Server
}

// Start runs both listeners until ctx is cancelled, then shuts down.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	if a.Metrics != nil {
		go func() { _ = a.Metrics.ListenAndServe() }()
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Failed to shut down server", zap.Error(err))
	}
	if a.Metrics != nil {
		_ = a.Metrics.Shutdown(shutdownCtx)
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Error("Failed to close Redis connection", zap.Error(err))
	}
	if a.Tracker != nil {
		if err := a.Tracker.Close(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.Error(err))
		}
	}
}
