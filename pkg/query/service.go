// Package query is the read-only side: rank, neighbor and hypothetical-score
// lookups computed from the leaderboard store plus the durable tracker
// records. It never writes.
package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/modes"
	"github.com/rankline/scorerank/pkg/tracker"
)

// ErrUnknownUser is returned when a lookup reference cannot be resolved to a
// user id. It maps to a client error, unlike store failures.
var ErrUnknownUser = errors.New("unknown user")

// LookupBy selects how a /u reference is resolved.
type LookupBy string

const (
	ByUserID   LookupBy = "user_id"
	ByUsername LookupBy = "username"
)

// PageSize is the fixed page length of PageRankings.
const PageSize = 50

// MaxPage bounds the page parameter; anything outside [1, MaxPage] falls
// back to page 1.
const MaxPage = 200

// HistorySample is one dated point of a user's rank history. Rank is nil for
// a day with no data.
type HistorySample struct {
	Rank *int
	Date time.Time
}

// RankedUser is one fully enriched lookup result. Rank is 0-indexed; -1
// means the user is not on the leaderboard. Username is empty when unknown.
type RankedUser struct {
	Rank     int64
	UserID   int64
	Username string
	Score    int64

	PeakRank    *tracker.PeakRank
	RankHistory []HistorySample

	Prev *leaderboard.Entry
	Next *leaderboard.Entry
}

// Service computes lookups. All reads go straight to the stores; an
// in-flight sync cycle may be half visible, which is accepted.
type Service struct {
	lb        *leaderboard.Store
	peaks     tracker.PeakRankStore
	histories tracker.RankHistoryStore
}

func New(lb *leaderboard.Store, peaks tracker.PeakRankStore, histories tracker.RankHistoryStore) *Service {
	return &Service{lb: lb, peaks: peaks, histories: histories}
}

// PeakRank returns the stored peak, nil when the user has none.
func (s *Service) PeakRank(ctx context.Context, userID int64, mode modes.Mode) (*tracker.PeakRank, error) {
	return s.peaks.GetPeakRank(ctx, userID, mode)
}

// RankHistory returns the user's dated history, newest first, walking one
// calendar day back per sample from the row's updated_at. Nil when the user
// has no history.
func (s *Service) RankHistory(ctx context.Context, userID int64, mode modes.Mode) ([]HistorySample, error) {
	h, err := s.histories.GetRankHistory(ctx, userID, mode)
	if err != nil || h == nil {
		return nil, err
	}

	out := make([]HistorySample, 0, len(h.Samples))
	date := h.UpdatedAt
	for i := len(h.Samples) - 1; i >= 0; i-- {
		out = append(out, HistorySample{Rank: h.Samples[i], Date: date})
		date = date.AddDate(0, 0, -1)
	}
	return out, nil
}

// LookupByRank returns the enriched entry at a 0-indexed rank, or nil when
// no entry holds that rank. Out-of-range is not an error.
func (s *Service) LookupByRank(ctx context.Context, mode modes.Mode, rank int64) (*RankedUser, error) {
	e, err := s.lb.EntryAtRank(ctx, mode, rank)
	if err != nil || e == nil {
		return nil, err
	}
	return s.enrich(ctx, mode, rank, e)
}

// LookupByUser resolves ref per by and returns the enriched result. When
// hypothetical is non-nil the returned rank is where an entry with that
// score would slot in (the caller's own current entry does not count ahead
// of it), and prev/next are the real entries around that slot; nothing is
// mutated.
func (s *Service) LookupByUser(ctx context.Context, mode modes.Mode, ref string, by LookupBy, hypothetical *int64) (*RankedUser, error) {
	userID, err := s.resolve(ctx, ref, by)
	if err != nil {
		return nil, err
	}

	username, _, err := s.lb.Username(ctx, userID)
	if err != nil {
		return nil, err
	}

	rank := int64(-1)
	var score int64
	if hypothetical != nil {
		score = *hypothetical
		r, err := s.lb.InsertionRankFor(ctx, mode, score)
		if err != nil {
			return nil, err
		}
		own, ok, err := s.lb.ScoreOf(ctx, mode, userID)
		if err != nil {
			return nil, err
		}
		if ok && own >= score {
			// The user's current entry sits at or above the insertion
			// point; it would be replaced, not passed.
			r--
		}
		rank = r
	} else {
		r, ok, err := s.lb.RankOf(ctx, mode, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			rank = r
			if score, _, err = s.lb.ScoreOf(ctx, mode, userID); err != nil {
				return nil, err
			}
		}
	}

	res := &RankedUser{Rank: rank, UserID: userID, Username: username, Score: score}
	if res.PeakRank, err = s.peaks.GetPeakRank(ctx, userID, mode); err != nil {
		return nil, err
	}
	if res.RankHistory, err = s.RankHistory(ctx, userID, mode); err != nil {
		return nil, err
	}

	if rank >= 0 {
		if res.Prev, err = s.lb.EntryAtRank(ctx, mode, rank-1); err != nil {
			return nil, err
		}
		if res.Next, err = s.lb.EntryAtRank(ctx, mode, rank+1); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// PageRankings returns one 50-entry page, enriched. Page numbers outside
// [1, MaxPage] are coerced to 1, per the public API contract.
func (s *Service) PageRankings(ctx context.Context, mode modes.Mode, pageNum int) ([]RankedUser, error) {
	if pageNum < 1 || pageNum > MaxPage {
		pageNum = 1
	}

	offset := int64(pageNum-1) * PageSize
	entries, err := s.lb.Page(ctx, mode, offset, PageSize)
	if err != nil {
		return nil, err
	}

	out := make([]RankedUser, 0, len(entries))
	for i := range entries {
		ru, err := s.enrich(ctx, mode, offset+int64(i), &entries[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *ru)
	}
	return out, nil
}

func (s *Service) resolve(ctx context.Context, ref string, by LookupBy) (int64, error) {
	if by == ByUsername {
		id, ok, err := s.lb.ResolveUsername(ctx, ref)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownUser, ref)
		}
		return id, nil
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUser, ref)
	}
	return id, nil
}

func (s *Service) enrich(ctx context.Context, mode modes.Mode, rank int64, e *leaderboard.Entry) (*RankedUser, error) {
	ru := &RankedUser{Rank: rank, UserID: e.UserID, Username: e.Username, Score: e.Score}

	var err error
	if ru.PeakRank, err = s.peaks.GetPeakRank(ctx, e.UserID, mode); err != nil {
		return nil, err
	}
	if ru.RankHistory, err = s.RankHistory(ctx, e.UserID, mode); err != nil {
		return nil, err
	}
	return ru, nil
}
