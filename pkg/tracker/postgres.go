package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rankline/scorerank/pkg/metrics"
	"github.com/rankline/scorerank/pkg/modes"
)

// DB is the Postgres-backed implementation of both tracker stores.
type DB struct {
	db *gorm.DB
}

// Open connects to Postgres using the given DSN and migrates the tracker
// tables.
func Open(dsn string, logger *zap.Logger) (*DB, error) {
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := g.AutoMigrate(&PeakRank{}, &RankHistory{}); err != nil {
		return nil, fmt.Errorf("migrate tracker tables: %w", err)
	}

	logger.Info("Connected to Postgres")
	return &DB{db: g}, nil
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func observe(query string, start time.Time) {
	metrics.ObserveStoreQuery(time.Since(start), query)
}

// RecordIfBetter upserts the peak in one statement; the conditional update
// happens inside the database, so concurrent observers cannot lose the
// better of two racing ranks.
func (d *DB) RecordIfBetter(ctx context.Context, userID int64, mode modes.Mode, rank int) error {
	defer observe("record_if_better", time.Now())

	rec := PeakRank{UserID: userID, Mode: mode, Rank: rank, UpdatedAt: time.Now().UTC()}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "mode"}},
		DoUpdates: clause.Assignments(map[string]any{
			"rank":       rec.Rank,
			"updated_at": rec.UpdatedAt,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("peak_ranks.rank > excluded.rank"),
		}},
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("record peak rank for user %d: %w", userID, err)
	}
	return nil
}

// GetPeakRank returns the stored peak, or nil when the user has none yet.
func (d *DB) GetPeakRank(ctx context.Context, userID int64, mode modes.Mode) (*PeakRank, error) {
	defer observe("get_peak_rank", time.Now())

	var rec PeakRank
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND mode = ?", userID, mode).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get peak rank for user %d: %w", userID, err)
	}
	return &rec, nil
}

// GetRankHistory returns the stored history row, or nil when absent.
func (d *DB) GetRankHistory(ctx context.Context, userID int64, mode modes.Mode) (*RankHistory, error) {
	defer observe("get_rank_history", time.Now())

	var rec RankHistory
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND mode = ?", userID, mode).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rank history for user %d: %w", userID, err)
	}
	return &rec, nil
}

// PutRankHistory upserts one history row.
func (d *DB) PutRankHistory(ctx context.Context, h *RankHistory) error {
	defer observe("put_rank_history", time.Now())

	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "mode"}},
		DoUpdates: clause.Assignments(map[string]any{
			"rank_history": h.Samples,
			"updated_at":   h.UpdatedAt,
		}),
	}).Create(h).Error
	if err != nil {
		return fmt.Errorf("put rank history for user %d: %w", h.UserID, err)
	}
	return nil
}
