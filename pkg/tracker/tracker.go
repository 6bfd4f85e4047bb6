// Package tracker holds the durable per-user records derived from the
// leaderboard: the best rank ever achieved and the rolling daily rank
// history, both keyed by (user_id, mode).
package tracker

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rankline/scorerank/pkg/modes"
)

// MaxHistorySamples bounds the rank history series to the last 90 days.
const MaxHistorySamples = 90

// PeakRank is the best (numerically lowest, 1-indexed) rank a user has ever
// held in a mode. Once written it only improves, never regresses and is
// never deleted.
type PeakRank struct {
	UserID    int64      `gorm:"primaryKey;column:user_id" json:"user_id"`
	Mode      modes.Mode `gorm:"primaryKey;column:mode" json:"mode"`
	Rank      int        `gorm:"column:rank;not null" json:"rank"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (PeakRank) TableName() string { return "peak_ranks" }

// Samples is the bounded daily rank series, oldest first. A nil element is a
// calendar day with no data; gaps are stored, never omitted, so each slot
// stays aligned to one day.
type Samples []*int

// Value implements driver.Valuer so gorm persists the series as JSON.
func (s Samples) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *Samples) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("unsupported samples column type %T", src)
	}
}

// RankHistory is the rolling daily rank series for one user and mode. The
// last sample corresponds to the calendar day of UpdatedAt; earlier samples
// walk back one day each.
type RankHistory struct {
	UserID    int64      `gorm:"primaryKey;column:user_id" json:"user_id"`
	Mode      modes.Mode `gorm:"primaryKey;column:mode" json:"mode"`
	Samples   Samples    `gorm:"column:rank_history;type:jsonb" json:"rank_history"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (RankHistory) TableName() string { return "rank_histories" }

// PeakRankStore persists peak ranks. Absence is reported as a nil record,
// not an error; store failures are errors and must never read as not-found.
type PeakRankStore interface {
	// RecordIfBetter writes rank as the user's peak only when no peak exists
	// yet or rank improves on the stored one. The check and the write are a
	// single atomic operation.
	RecordIfBetter(ctx context.Context, userID int64, mode modes.Mode, rank int) error
	GetPeakRank(ctx context.Context, userID int64, mode modes.Mode) (*PeakRank, error)
}

// RankHistoryStore persists rank history rows. Each row is written
// independently; there is no cross-user transaction.
type RankHistoryStore interface {
	GetRankHistory(ctx context.Context, userID int64, mode modes.Mode) (*RankHistory, error)
	PutRankHistory(ctx context.Context, h *RankHistory) error
}
