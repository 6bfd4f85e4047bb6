package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rankline/scorerank/pkg/modes"
)

type key struct {
	userID int64
	mode   modes.Mode
}

// MemStore is an in-memory implementation of both tracker stores, used by
// tests and local development. The peak-rank check-and-set is atomic under
// its mutex, matching the single-statement semantics of the Postgres store.
type MemStore struct {
	mu        sync.RWMutex
	peaks     map[key]PeakRank
	histories map[key]RankHistory
}

func NewMemStore() *MemStore {
	return &MemStore{
		peaks:     make(map[key]PeakRank),
		histories: make(map[key]RankHistory),
	}
}

func (m *MemStore) RecordIfBetter(_ context.Context, userID int64, mode modes.Mode, rank int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{userID, mode}
	if cur, ok := m.peaks[k]; ok && cur.Rank <= rank {
		return nil
	}
	m.peaks[k] = PeakRank{UserID: userID, Mode: mode, Rank: rank, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *MemStore) GetPeakRank(_ context.Context, userID int64, mode modes.Mode) (*PeakRank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.peaks[key{userID, mode}]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *MemStore) GetRankHistory(_ context.Context, userID int64, mode modes.Mode) (*RankHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.histories[key{userID, mode}]; ok {
		cp := rec
		cp.Samples = append(Samples(nil), rec.Samples...)
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) PutRankHistory(_ context.Context, h *RankHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *h
	cp.Samples = append(Samples(nil), h.Samples...)
	m.histories[key{h.UserID, h.Mode}] = cp
	return nil
}
