// Package history produces the daily rank-history rollup: one pass over a
// mode's leaderboard appending today's rank to every present user's bounded
// 90-day series.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/modes"
	"github.com/rankline/scorerank/pkg/tracker"
)

// Compactor runs the rollup. Each user's row is written independently; a
// failed write is logged and skipped so the rest of the pass proceeds.
type Compactor struct {
	lb        *leaderboard.Store
	histories tracker.RankHistoryStore
	pool      pond.Pool
	logger    *zap.Logger

	now func() time.Time
}

func NewCompactor(lb *leaderboard.Store, histories tracker.RankHistoryStore, pool pond.Pool, logger *zap.Logger) *Compactor {
	return &Compactor{
		lb:        lb,
		histories: histories,
		pool:      pool,
		logger:    logger,
		now:       time.Now,
	}
}

// CompactMode rolls up one mode. Ranks are recorded 1-indexed from the
// leaderboard's current ordering. Users absent from the leaderboard keep
// their stored rows untouched.
func (c *Compactor) CompactMode(ctx context.Context, mode modes.Mode) error {
	ids, err := c.lb.RankedUserIDs(ctx, mode)
	if err != nil {
		return fmt.Errorf("list leaderboard for %s: %w", mode, err)
	}

	today := c.now().UTC()
	group := c.pool.NewGroupContext(ctx)

	var failed atomic.Int64
	for i, id := range ids {
		rank := i + 1
		userID := id
		group.Submit(func() {
			if err := c.compactUser(ctx, mode, userID, rank, today); err != nil {
				failed.Add(1)
				c.logger.Warn("rank history update failed",
					zap.Stringer("mode", mode),
					zap.Int64("user_id", userID),
					zap.Error(err))
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rollup for %s: %w", mode, err)
	}

	c.logger.Info("rank history rollup finished",
		zap.Stringer("mode", mode),
		zap.Int("users", len(ids)),
		zap.Int64("failed", failed.Load()))
	return nil
}

func (c *Compactor) compactUser(ctx context.Context, mode modes.Mode, userID int64, rank int, today time.Time) error {
	stored, err := c.histories.GetRankHistory(ctx, userID, mode)
	if err != nil {
		return err
	}

	var samples tracker.Samples
	if stored != nil {
		days := int(today.Sub(stored.UpdatedAt).Hours() / 24)
		if days >= tracker.MaxHistorySamples {
			// The whole series predates the window; start over rather
			// than backfill.
			samples = nil
		} else {
			samples = stored.Samples
			// One null per missed day keeps each slot aligned to a
			// calendar day.
			for j := 1; j < days; j++ {
				samples = append(samples, nil)
			}
		}
	}

	r := rank
	samples = append(samples, &r)
	if n := len(samples); n > tracker.MaxHistorySamples {
		samples = samples[n-tracker.MaxHistorySamples:]
	}

	return c.histories.PutRankHistory(ctx, &tracker.RankHistory{
		UserID:    userID,
		Mode:      mode,
		Samples:   samples,
		UpdatedAt: today,
	})
}
