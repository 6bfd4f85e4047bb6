package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/modes"
	"github.com/rankline/scorerank/pkg/osuapi"
	"github.com/rankline/scorerank/pkg/tracker"
)

type call struct {
	page *osuapi.RankingsPage
	err  error
}

// scriptedSource replays a fixed sequence of responses, optionally blocking
// on entered/release to let tests observe an in-flight cycle.
type scriptedSource struct {
	mu      sync.Mutex
	calls   []call
	i       int
	entered chan struct{}
	release chan struct{}
}

func (s *scriptedSource) Rankings(_ context.Context, _ modes.Mode, _ int) (*osuapi.RankingsPage, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.calls) {
		return &osuapi.RankingsPage{}, nil
	}
	c := s.calls[s.i]
	s.i++
	return c.page, c.err
}

func page(cursor *osuapi.Cursor, entries ...osuapi.RankingEntry) *osuapi.RankingsPage {
	return &osuapi.RankingsPage{Ranking: entries, Cursor: cursor}
}

func rec(id int64, name string, score int64) osuapi.RankingEntry {
	return osuapi.RankingEntry{User: osuapi.RankingUser{ID: id, Username: name}, RankedScore: score}
}

func newTestCoordinator(t *testing.T, src Source) (*Coordinator, *leaderboard.Store, *tracker.MemStore, *[]time.Duration) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lb := leaderboard.New(rdb)
	peaks := tracker.NewMemStore()
	c := New(src, lb, peaks, zap.NewNop())

	slept := &[]time.Duration{}
	c.pageDelay = 0
	c.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c, lb, peaks, slept
}

func TestCycleIngestsAllPagesAndRecordsPeaks(t *testing.T) {
	src := &scriptedSource{calls: []call{
		{page: page(&osuapi.Cursor{Page: 2}, rec(1, "A", 100), rec(2, "B", 90))},
		{page: page(nil, rec(3, "C", 80))},
	}}
	c, lb, peaks, _ := newTestCoordinator(t, src)
	ctx := context.Background()

	require.NoError(t, c.RunCycle(ctx, modes.Osu))

	ids, err := lb.AllUserIDs(ctx, modes.Osu)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	for id, want := range map[int64]int{1: 1, 2: 2, 3: 3} {
		p, err := peaks.GetPeakRank(ctx, id, modes.Osu)
		require.NoError(t, err)
		require.NotNil(t, p, "user %d", id)
		assert.Equal(t, want, p.Rank, "user %d", id)
	}
}

func TestReconciliationRemovesUnobservedUsers(t *testing.T) {
	src := &scriptedSource{calls: []call{
		{page: page(nil, rec(10, "X", 50), rec(11, "Y", 40))},
	}}
	c, lb, _, _ := newTestCoordinator(t, src)
	ctx := context.Background()

	// Store previously held X, Y and Z for mania.
	require.NoError(t, lb.Upsert(ctx, modes.Mania, 10, "X", 48))
	require.NoError(t, lb.Upsert(ctx, modes.Mania, 11, "Y", 39))
	require.NoError(t, lb.Upsert(ctx, modes.Mania, 12, "Z", 30))

	require.NoError(t, c.RunCycle(ctx, modes.Mania))

	ids, err := lb.AllUserIDs(ctx, modes.Mania)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{10, 11}, ids)

	_, ok, err := lb.RankOf(ctx, modes.Mania, 12)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransientFailuresRetryWithBackoff(t *testing.T) {
	boom := errors.New("boom")
	src := &scriptedSource{calls: []call{
		{err: boom},
		{err: boom},
		{page: page(nil, rec(1, "A", 100))},
	}}
	c, lb, _, slept := newTestCoordinator(t, src)
	ctx := context.Background()

	require.NoError(t, c.RunCycle(ctx, modes.Osu))

	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, *slept)

	ids, err := lb.AllUserIDs(ctx, modes.Osu)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestRetryExhaustionAbandonsCycleButKeepsPartialData(t *testing.T) {
	boom := errors.New("boom")
	src := &scriptedSource{calls: []call{
		{page: page(&osuapi.Cursor{Page: 2}, rec(1, "A", 100))},
		{err: boom},
		{err: boom},
		{err: boom},
		{err: boom},
	}}
	c, lb, _, slept := newTestCoordinator(t, src)
	ctx := context.Background()

	err := c.RunCycle(ctx, modes.Osu)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// Three backoff sleeps before the fourth attempt exhausts.
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}, *slept)

	// Upserts from the successful first page survive: no reconciliation ran.
	ids, lerr := lb.AllUserIDs(ctx, modes.Osu)
	require.NoError(t, lerr)
	assert.Equal(t, []int64{1}, ids)

	// The mode is idle again, so the next tick starts a fresh cycle.
	src.mu.Lock()
	src.calls = append(src.calls, call{page: page(nil, rec(1, "A", 100))})
	src.mu.Unlock()
	require.NoError(t, c.RunCycle(ctx, modes.Osu))
}

func TestSingleFlightPerMode(t *testing.T) {
	src := &scriptedSource{
		calls:   []call{{page: page(nil, rec(1, "A", 100))}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, _, _, _ := newTestCoordinator(t, src)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.RunCycle(ctx, modes.Osu) }()
	<-src.entered

	// Same mode is refused while the cycle is in flight.
	assert.ErrorIs(t, c.RunCycle(ctx, modes.Osu), ErrCycleInFlight)

	// A compaction for the busy mode is skipped as well.
	comp := &countingCompactor{}
	c.CompactAll(ctx, comp)
	assert.NotContains(t, comp.modes, modes.Osu)
	assert.Contains(t, comp.modes, modes.Taiko)

	close(src.release)
	require.NoError(t, <-done)

	// Idle again afterwards.
	src.mu.Lock()
	src.i = 0
	src.entered = nil
	src.release = nil
	src.mu.Unlock()
	require.NoError(t, c.RunCycle(ctx, modes.Osu))
}

type countingCompactor struct {
	mu    sync.Mutex
	modes []modes.Mode
	block chan struct{}
}

func (c *countingCompactor) CompactMode(_ context.Context, mode modes.Mode) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes = append(c.modes, mode)
	return nil
}

func TestTickNextRoundRobinsModes(t *testing.T) {
	src := &scriptedSource{calls: []call{
		{page: page(nil, rec(1, "A", 100))},
		{page: page(nil, rec(1, "A", 100))},
		{page: page(nil, rec(1, "A", 100))},
		{page: page(nil, rec(1, "A", 100))},
	}}
	c, lb, _, _ := newTestCoordinator(t, src)
	ctx := context.Background()

	for i := 0; i < len(modes.All); i++ {
		c.TickNext(ctx)
	}

	// Every mode saw exactly one cycle: user 1 is on all four leaderboards.
	for _, m := range modes.All {
		_, ok, err := lb.RankOf(ctx, m, 1)
		require.NoError(t, err)
		assert.True(t, ok, "mode %s", m)
	}
}
