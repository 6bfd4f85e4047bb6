// Package leaderboard implements the per-mode score index and the
// bidirectional username index, backed by one Redis sorted set per mode
// (`score_<mode>`) plus the `user_id_to_username` / `username_to_user_id`
// hashes shared across modes.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rankline/scorerank/pkg/metrics"
	"github.com/rankline/scorerank/pkg/modes"
)

const (
	idToNameKey = "user_id_to_username"
	nameToIDKey = "username_to_user_id"
)

// Entry is one leaderboard row.
type Entry struct {
	UserID   int64
	Username string
	Score    int64
}

// Store exposes rank and membership operations over the Redis indexes.
//
// Equal scores are ordered the way Redis orders sorted-set members with the
// same score: lexicographically by the decimal user-id string, read in
// reverse for rank queries. The ordering is deterministic and stable across
// upserts; callers must not assume lower user ids rank first.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func scoreKey(mode modes.Mode) string {
	return "score_" + mode.String()
}

func observe(query string, start time.Time) {
	metrics.ObserveStoreQuery(time.Since(start), query)
}

// Upsert sets the user's score and username. The sorted-set write and both
// hash writes go through a single MULTI/EXEC so a reader never sees the score
// without the matching username. A username change retires the old
// username->id mapping in the same transaction.
func (s *Store) Upsert(ctx context.Context, mode modes.Mode, userID int64, username string, score int64) error {
	defer observe("upsert", time.Now())

	id := strconv.FormatInt(userID, 10)

	oldName, err := s.rdb.HGet(ctx, idToNameKey, id).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read current username for user %d: %w", userID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, scoreKey(mode), redis.Z{Score: float64(score), Member: id})
		p.HSet(ctx, idToNameKey, id, username)
		p.HSet(ctx, nameToIDKey, username, id)
		if oldName != "" && oldName != username {
			p.HDel(ctx, nameToIDKey, oldName)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", userID, err)
	}
	return nil
}

// RankOf returns the user's 0-indexed position sorted by score descending,
// or ok=false when the user is not on the mode's leaderboard.
func (s *Store) RankOf(ctx context.Context, mode modes.Mode, userID int64) (int64, bool, error) {
	defer observe("rank_of", time.Now())

	rank, err := s.rdb.ZRevRank(ctx, scoreKey(mode), strconv.FormatInt(userID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("rank of user %d: %w", userID, err)
	}
	return rank, true, nil
}

// ScoreOf returns the user's stored score, or ok=false when absent.
func (s *Store) ScoreOf(ctx context.Context, mode modes.Mode, userID int64) (int64, bool, error) {
	defer observe("score_of", time.Now())

	score, err := s.rdb.ZScore(ctx, scoreKey(mode), strconv.FormatInt(userID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("score of user %d: %w", userID, err)
	}
	return int64(score), true, nil
}

// EntryAtRank returns the entry at the given 0-indexed rank, or nil when the
// rank is negative or past the end of the leaderboard.
func (s *Store) EntryAtRank(ctx context.Context, mode modes.Mode, rank int64) (*Entry, error) {
	defer observe("entry_at_rank", time.Now())

	if rank < 0 {
		return nil, nil
	}
	rows, err := s.rdb.ZRevRangeWithScores(ctx, scoreKey(mode), rank, rank).Result()
	if err != nil {
		return nil, fmt.Errorf("entry at rank %d: %w", rank, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	id, err := strconv.ParseInt(rows[0].Member.(string), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed member at rank %d: %w", rank, err)
	}
	name, err := s.rdb.HGet(ctx, idToNameKey, rows[0].Member.(string)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("username of user %d: %w", id, err)
	}
	return &Entry{UserID: id, Username: name, Score: int64(rows[0].Score)}, nil
}

// Page returns up to limit entries starting at offset, score descending.
func (s *Store) Page(ctx context.Context, mode modes.Mode, offset, limit int64) ([]Entry, error) {
	defer observe("page", time.Now())

	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.rdb.ZRevRangeWithScores(ctx, scoreKey(mode), offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("page %d+%d: %w", offset, limit, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.Member.(string)
	}
	names, err := s.rdb.HMGet(ctx, idToNameKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("usernames for page: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		id, perr := strconv.ParseInt(ids[i], 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("malformed member %q: %w", ids[i], perr)
		}
		name, _ := names[i].(string)
		entries[i] = Entry{UserID: id, Username: name, Score: int64(row.Score)}
	}
	return entries, nil
}

// InsertionRankFor returns the 0-indexed rank a hypothetical entry with the
// given score would occupy: the count of entries whose score is >= score,
// so ties place the hypothetical below existing equal scores. Never mutates.
func (s *Store) InsertionRankFor(ctx context.Context, mode modes.Mode, score int64) (int64, error) {
	defer observe("insertion_rank_for", time.Now())

	n, err := s.rdb.ZCount(ctx, scoreKey(mode), strconv.FormatInt(score, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("insertion rank for score %d: %w", score, err)
	}
	return n, nil
}

// Remove deletes the user from the mode's score index. The username
// mappings are dropped only once the user is absent from every mode, since
// the hashes are shared across modes.
func (s *Store) Remove(ctx context.Context, mode modes.Mode, userID int64) error {
	defer observe("remove", time.Now())

	id := strconv.FormatInt(userID, 10)

	name, err := s.rdb.HGet(ctx, idToNameKey, id).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read username for user %d: %w", userID, err)
	}

	if err := s.rdb.ZRem(ctx, scoreKey(mode), id).Err(); err != nil {
		return fmt.Errorf("remove user %d: %w", userID, err)
	}

	for _, m := range modes.All {
		if m == mode {
			continue
		}
		if err := s.rdb.ZScore(ctx, scoreKey(m), id).Err(); err == nil {
			return nil
		} else if !errors.Is(err, redis.Nil) {
			return fmt.Errorf("check membership of user %d in %s: %w", userID, m, err)
		}
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, idToNameKey, id)
		if name != "" {
			p.HDel(ctx, nameToIDKey, name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("drop username mappings for user %d: %w", userID, err)
	}
	return nil
}

// AllUserIDs returns the full membership of the mode's index, in no
// particular order. Used by reconciliation only.
func (s *Store) AllUserIDs(ctx context.Context, mode modes.Mode) ([]int64, error) {
	defer observe("all_user_ids", time.Now())

	members, err := s.rdb.ZRange(ctx, scoreKey(mode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("all user ids: %w", err)
	}
	return parseIDs(members)
}

// RankedUserIDs returns every user id on the mode's leaderboard ordered by
// rank, best first. Used by the daily history rollup.
func (s *Store) RankedUserIDs(ctx context.Context, mode modes.Mode) ([]int64, error) {
	defer observe("ranked_user_ids", time.Now())

	members, err := s.rdb.ZRevRange(ctx, scoreKey(mode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ranked user ids: %w", err)
	}
	return parseIDs(members)
}

// ResolveUsername maps a username to its user id, ok=false when unknown.
func (s *Store) ResolveUsername(ctx context.Context, username string) (int64, bool, error) {
	defer observe("resolve_username", time.Now())

	v, err := s.rdb.HGet(ctx, nameToIDKey, username).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve username %q: %w", username, err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed id for username %q: %w", username, err)
	}
	return id, true, nil
}

// Username returns the stored username for a user id, ok=false when unknown.
func (s *Store) Username(ctx context.Context, userID int64) (string, bool, error) {
	defer observe("username", time.Now())

	v, err := s.rdb.HGet(ctx, idToNameKey, strconv.FormatInt(userID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("username of user %d: %w", userID, err)
	}
	return v, true, nil
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, len(members))
	for i, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed member %q: %w", m, err)
		}
		ids[i] = id
	}
	return ids, nil
}
