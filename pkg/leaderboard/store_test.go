package leaderboard_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/modes"
)

func newTestStore(t *testing.T) *leaderboard.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return leaderboard.New(rdb)
}

func seedOsu(t *testing.T, s *leaderboard.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, modes.Osu, 1, "A", 100))
	require.NoError(t, s.Upsert(ctx, modes.Osu, 2, "B", 90))
	require.NoError(t, s.Upsert(ctx, modes.Osu, 3, "C", 80))
}

func TestRankRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	for r := int64(0); r < 3; r++ {
		e, err := s.EntryAtRank(ctx, modes.Osu, r)
		require.NoError(t, err)
		require.NotNil(t, e)

		rank, ok, err := s.RankOf(ctx, modes.Osu, e.UserID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, r, rank)
	}
}

func TestEntryAtRank(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	top, err := s.EntryAtRank(ctx, modes.Osu, 0)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, leaderboard.Entry{UserID: 1, Username: "A", Score: 100}, *top)

	missing, err := s.EntryAtRank(ctx, modes.Osu, 5)
	require.NoError(t, err)
	assert.Nil(t, missing)

	negative, err := s.EntryAtRank(ctx, modes.Osu, -1)
	require.NoError(t, err)
	assert.Nil(t, negative)
}

func TestUpsertUpdatesScoreAndUsername(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	// B overtakes A and renames at the same time.
	require.NoError(t, s.Upsert(ctx, modes.Osu, 2, "B2", 110))

	rank, ok, err := s.RankOf(ctx, modes.Osu, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), rank)

	name, ok, err := s.Username(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B2", name)

	id, ok, err := s.ResolveUsername(ctx, "B2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	// The stale mapping for the old name is gone.
	_, ok, err = s.ResolveUsername(ctx, "B")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPage(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	entries, err := s.Page(ctx, modes.Osu, 0, 50)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "A", entries[0].Username)
	assert.Equal(t, "B", entries[1].Username)
	assert.Equal(t, "C", entries[2].Username)

	entries, err = s.Page(ctx, modes.Osu, 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].UserID)

	entries, err = s.Page(ctx, modes.Osu, 10, 50)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInsertionRankFor(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	cases := []struct {
		score int64
		want  int64
	}{
		{1000, 0}, // above everyone
		{100, 1},  // ties with A, placed below
		{95, 1},
		{85, 2}, // between B and C
		{80, 3}, // ties with C, placed below
		{10, 3}, // below everyone
	}
	for _, tc := range cases {
		got, err := s.InsertionRankFor(ctx, modes.Osu, tc.score)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "score %d", tc.score)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	require.NoError(t, s.Remove(ctx, modes.Osu, 2))

	_, ok, err := s.RankOf(ctx, modes.Osu, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	// Username mappings go with the last leaderboard membership.
	_, ok, err = s.Username(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.ResolveUsername(ctx, "B")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := s.AllUserIDs(ctx, modes.Osu)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, ids)
}

func TestRemoveKeepsUsernameWhileInOtherModes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, modes.Osu, 7, "G", 500))
	require.NoError(t, s.Upsert(ctx, modes.Mania, 7, "G", 300))

	require.NoError(t, s.Remove(ctx, modes.Osu, 7))

	_, ok, err := s.RankOf(ctx, modes.Osu, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	// Still on the mania leaderboard, so the username index keeps the entry.
	name, ok, err := s.Username(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "G", name)

	require.NoError(t, s.Remove(ctx, modes.Mania, 7))
	_, ok, err = s.Username(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTieBreakIsDeterministic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same score: ordered by reverse lexicographic member string, so "21"
	// ranks ahead of "12" regardless of upsert order.
	require.NoError(t, s.Upsert(ctx, modes.Osu, 12, "low", 100))
	require.NoError(t, s.Upsert(ctx, modes.Osu, 21, "high", 100))

	first, err := s.EntryAtRank(ctx, modes.Osu, 0)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(21), first.UserID)

	// Re-upserting the same pair does not change the ordering.
	require.NoError(t, s.Upsert(ctx, modes.Osu, 21, "high", 100))
	require.NoError(t, s.Upsert(ctx, modes.Osu, 12, "low", 100))

	first, err = s.EntryAtRank(ctx, modes.Osu, 0)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(21), first.UserID)
}

func TestRankedUserIDs(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	ids, err := s.RankedUserIDs(ctx, modes.Osu)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestModesArePartitioned(t *testing.T) {
	s := newTestStore(t)
	seedOsu(t, s)
	ctx := context.Background()

	ids, err := s.AllUserIDs(ctx, modes.Taiko)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
