// Package syncer drives the per-mode ingestion cycles: paginated fetches
// from the external ranking source into the leaderboard store, peak-rank
// tracking along the way, and reconciliation of entries the source no longer
// reports.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/modes"
	"github.com/rankline/scorerank/pkg/osuapi"
	"github.com/rankline/scorerank/pkg/tracker"
)

// ErrCycleInFlight is returned when a cycle or compaction is refused because
// the mode is not idle. At most one of either runs per mode at any time.
var ErrCycleInFlight = errors.New("mode is busy")

// Source is the paginated external ranking feed.
type Source interface {
	Rankings(ctx context.Context, mode modes.Mode, page int) (*osuapi.RankingsPage, error)
}

// Compactor produces the daily rank-history rollup for one mode.
type Compactor interface {
	CompactMode(ctx context.Context, mode modes.Mode) error
}

// Coordinator owns the per-mode cycle state machines. One scheduler loop
// calls TickNext; everything else is internal.
type Coordinator struct {
	source Source
	lb     *leaderboard.Store
	peaks  tracker.PeakRankStore
	logger *zap.Logger

	states *xsync.Map[modes.Mode, *modeState]
	next   atomic.Int64

	maxAttempts int
	retryUnit   time.Duration
	pageDelay   time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func New(source Source, lb *leaderboard.Store, peaks tracker.PeakRankStore, logger *zap.Logger) *Coordinator {
	states := xsync.NewMap[modes.Mode, *modeState]()
	for _, m := range modes.All {
		states.Store(m, &modeState{})
	}
	return &Coordinator{
		source:      source,
		lb:          lb,
		peaks:       peaks,
		logger:      logger,
		states:      states,
		maxAttempts: 4,
		retryUnit:   10 * time.Second,
		pageDelay:   time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TickNext runs one scheduler tick: round-robin to the next mode and attempt
// a cycle for it. A refused tick (mode still busy) is logged and dropped,
// never queued.
func (c *Coordinator) TickNext(ctx context.Context) {
	i := c.next.Add(1)
	mode := modes.All[int(i)%len(modes.All)]

	err := c.RunCycle(ctx, mode)
	switch {
	case errors.Is(err, ErrCycleInFlight):
		// already logged by RunCycle
	case err != nil:
		c.logger.Error("cycle failed", zap.Stringer("mode", mode), zap.Error(err))
	}
}

// RunCycle runs one full ingestion cycle for a mode. It refuses to start
// while the mode is not idle and returns ErrCycleInFlight.
func (c *Coordinator) RunCycle(ctx context.Context, mode modes.Mode) error {
	st, _ := c.states.Load(mode)
	if !st.transition(StateIdle, StateFetching) {
		c.logger.Warn("skipping tick",
			zap.Stringer("mode", mode),
			zap.Stringer("state", st.current()))
		return ErrCycleInFlight
	}

	c.logger.Info("starting cycle", zap.Stringer("mode", mode))
	err := c.runCycle(ctx, mode, st)
	if err != nil {
		// Terminal for this cycle; partial upserts from earlier pages are
		// retained and the next scheduled tick starts fresh.
		st.set(StateFailed)
		c.logger.Warn("cycle abandoned", zap.Stringer("mode", mode), zap.Error(err))
	}
	st.set(StateIdle)
	return err
}

func (c *Coordinator) runCycle(ctx context.Context, mode modes.Mode, st *modeState) error {
	observed := make(map[int64]struct{})
	page := 1
	st.attempts = 0

	for {
		res, err := c.source.Rankings(ctx, mode, page)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.attempts++
			if st.attempts >= c.maxAttempts {
				st.attempts = 0
				return fmt.Errorf("fetch page %d: max retries reached: %w", page, err)
			}
			delay := time.Duration(st.attempts) * c.retryUnit
			c.logger.Warn("page fetch failed, retrying",
				zap.Stringer("mode", mode),
				zap.Int("page", page),
				zap.Int("attempt", st.attempts),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			if serr := c.sleep(ctx, delay); serr != nil {
				return serr
			}
			continue
		}
		st.attempts = 0

		for _, rec := range res.Ranking {
			if err := c.ingest(ctx, mode, rec); err != nil {
				return err
			}
			observed[rec.User.ID] = struct{}{}
		}
		c.logger.Info("page ingested",
			zap.Stringer("mode", mode),
			zap.Int("page", page),
			zap.Int("entries", len(res.Ranking)),
			zap.Int("total", len(observed)))

		if res.Cursor == nil {
			break
		}
		page = res.Cursor.Page
		if err := c.sleep(ctx, c.pageDelay); err != nil {
			return err
		}
	}

	st.set(StateReconciling)
	return c.reconcile(ctx, mode, observed)
}

// ingest upserts one record and opportunistically records its peak rank,
// using the rank read immediately after the upsert.
func (c *Coordinator) ingest(ctx context.Context, mode modes.Mode, rec osuapi.RankingEntry) error {
	if err := c.lb.Upsert(ctx, mode, rec.User.ID, rec.User.Username, rec.RankedScore); err != nil {
		return err
	}
	rank, ok, err := c.lb.RankOf(ctx, mode, rec.User.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.peaks.RecordIfBetter(ctx, rec.User.ID, mode, int(rank)+1)
}

// reconcile removes every user the completed cycle did not observe: bans,
// deletions and mode switches fall out of the index here.
func (c *Coordinator) reconcile(ctx context.Context, mode modes.Mode, observed map[int64]struct{}) error {
	all, err := c.lb.AllUserIDs(ctx, mode)
	if err != nil {
		return err
	}

	removed := 0
	for _, id := range all {
		if _, ok := observed[id]; ok {
			continue
		}
		if err := c.lb.Remove(ctx, mode, id); err != nil {
			return err
		}
		c.logger.Info("removed user absent from source",
			zap.Stringer("mode", mode),
			zap.Int64("user_id", id))
		removed++
	}

	c.logger.Info("cycle finished",
		zap.Stringer("mode", mode),
		zap.Int("observed", len(observed)),
		zap.Int("removed", removed))
	return nil
}

// CompactAll runs the daily rollup for every mode under the same per-mode
// single-flight guard as cycles: a mode mid-cycle is skipped, and a tick
// arriving mid-compaction is refused the same way.
func (c *Coordinator) CompactAll(ctx context.Context, comp Compactor) {
	for _, mode := range modes.All {
		st, _ := c.states.Load(mode)
		if !st.transition(StateIdle, StateCompacting) {
			c.logger.Warn("skipping compaction",
				zap.Stringer("mode", mode),
				zap.Stringer("state", st.current()))
			continue
		}
		if err := comp.CompactMode(ctx, mode); err != nil {
			c.logger.Error("compaction failed", zap.Stringer("mode", mode), zap.Error(err))
		}
		st.set(StateIdle)
	}
}
