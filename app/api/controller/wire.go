package controller

import (
	"time"

	"github.com/rankline/scorerank/pkg/leaderboard"
	"github.com/rankline/scorerank/pkg/query"
)

// The wire shapes below preserve the historical response format exactly:
// ranks are 1-indexed with 0 meaning "not ranked", and an absent username is
// the number zero, not null. Internally absence is explicit; the sentinel
// exists only at this boundary.

// isoDate formats like ECMAScript Date.toISOString.
const isoDate = "2006-01-02T15:04:05.000Z"

type wirePeak struct {
	Rank      int       `json:"rank"`
	UpdatedAt time.Time `json:"updated_at"`
}

type wireHistorySample struct {
	Rank *int   `json:"rank"`
	Date string `json:"date"`
}

type wireNeighbor struct {
	Username any   `json:"username"`
	UserID   int64 `json:"user_id"`
	Score    int64 `json:"score"`
}

type wireEntry struct {
	Rank        int64               `json:"rank"`
	UserID      int64               `json:"user_id"`
	Username    any                 `json:"username"`
	Score       int64               `json:"score"`
	RankHighest *wirePeak           `json:"rank_highest"`
	RankHistory []wireHistorySample `json:"rank_history"`
}

type wireUserEntry struct {
	wireEntry
	Prev *wireNeighbor `json:"prev"`
	Next *wireNeighbor `json:"next"`
}

// sentinelEntry is the fixed not-found shape of /rank/{rank}. Its zero
// value marshals to {rank:0,user_id:0,username:0,score:0}.
type sentinelEntry struct {
	Rank     int `json:"rank"`
	UserID   int `json:"user_id"`
	Username int `json:"username"`
	Score    int `json:"score"`
}

func wireUsername(name string) any {
	if name == "" {
		return 0
	}
	return name
}

func toWireEntry(u *query.RankedUser) wireEntry {
	e := wireEntry{
		Rank:     u.Rank + 1,
		UserID:   u.UserID,
		Username: wireUsername(u.Username),
		Score:    u.Score,
	}
	if u.PeakRank != nil {
		e.RankHighest = &wirePeak{Rank: u.PeakRank.Rank, UpdatedAt: u.PeakRank.UpdatedAt}
	}
	e.RankHistory = toWireHistory(u.RankHistory)
	return e
}

func toWireHistory(samples []query.HistorySample) []wireHistorySample {
	if samples == nil {
		return nil
	}
	out := make([]wireHistorySample, len(samples))
	for i, s := range samples {
		out[i] = wireHistorySample{Rank: s.Rank, Date: s.Date.UTC().Format(isoDate)}
	}
	return out
}

func toWireNeighbor(e *leaderboard.Entry) *wireNeighbor {
	if e == nil {
		return nil
	}
	return &wireNeighbor{Username: wireUsername(e.Username), UserID: e.UserID, Score: e.Score}
}

func toWireUserEntry(u *query.RankedUser) wireUserEntry {
	return wireUserEntry{
		wireEntry: toWireEntry(u),
		Prev:      toWireNeighbor(u.Prev),
		Next:      toWireNeighbor(u.Next),
	}
}
