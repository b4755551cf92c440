// Package memory implements the snapshot store in process memory. It backs
// the "memory" storage driver and the scanner's tests; nothing survives a
// restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// SnapshotStore is an in-memory implementation of domain.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]domain.Snapshot // per ticker, unordered
	metadata  map[string]domain.MarketMetadata
}

// NewSnapshotStore creates an empty in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string][]domain.Snapshot),
		metadata:  make(map[string]domain.MarketMetadata),
	}
}

// AppendBatch adds all snapshots.
func (s *SnapshotStore) AppendBatch(_ context.Context, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		s.snapshots[snap.Ticker] = append(s.snapshots[snap.Ticker], snap)
	}
	return nil
}

// PruneOldest drops, for every ticker, all but the maxPerTicker most recent
// snapshots and returns the number removed.
func (s *SnapshotStore) PruneOldest(_ context.Context, maxPerTicker int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for ticker, snaps := range s.snapshots {
		if len(snaps) <= maxPerTicker {
			continue
		}
		sortNewestFirst(snaps)

		kept := make([]domain.Snapshot, maxPerTicker)
		copy(kept, snaps[:maxPerTicker])

		pruned += int64(len(snaps) - maxPerTicker)
		s.snapshots[ticker] = kept
	}
	return pruned, nil
}

// ListPrunable returns the snapshots PruneOldest would delete, oldest first
// per ticker.
func (s *SnapshotStore) ListPrunable(_ context.Context, maxPerTicker int) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickers := make([]string, 0, len(s.snapshots))
	for ticker := range s.snapshots {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var prunable []domain.Snapshot
	for _, ticker := range tickers {
		snaps := s.snapshots[ticker]
		if len(snaps) <= maxPerTicker {
			continue
		}

		sorted := make([]domain.Snapshot, len(snaps))
		copy(sorted, snaps)
		sortNewestFirst(sorted)

		excess := sorted[maxPerTicker:]
		for i := len(excess) - 1; i >= 0; i-- {
			prunable = append(prunable, excess[i])
		}
	}
	return prunable, nil
}

// ReadAllHistories returns up to limitPerTicker snapshots for every ticker,
// newest first within each ticker.
func (s *SnapshotStore) ReadAllHistories(_ context.Context, limitPerTicker int) (map[string][]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	histories := make(map[string][]domain.Snapshot, len(s.snapshots))
	for ticker, snaps := range s.snapshots {
		if len(snaps) == 0 {
			continue
		}

		sorted := make([]domain.Snapshot, len(snaps))
		copy(sorted, snaps)
		sortNewestFirst(sorted)

		if len(sorted) > limitPerTicker {
			sorted = sorted[:limitPerTicker]
		}
		histories[ticker] = sorted
	}
	return histories, nil
}

// ReadHistory returns up to limit snapshots for one ticker, newest first. An
// unknown ticker yields an empty history, not an error.
func (s *SnapshotStore) ReadHistory(_ context.Context, ticker string, limit int) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.snapshots[ticker]
	if len(snaps) == 0 {
		return nil, nil
	}

	sorted := make([]domain.Snapshot, len(snaps))
	copy(sorted, snaps)
	sortNewestFirst(sorted)

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// UpsertMetadata inserts or refreshes the display metadata for one ticker.
func (s *SnapshotStore) UpsertMetadata(_ context.Context, meta domain.MarketMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta.UpdatedAt = time.Now().UTC()
	s.metadata[meta.Ticker] = meta
	return nil
}

// ReadMetadata returns the stored metadata for one ticker, or
// domain.ErrNotFound when the ticker has never been seen.
func (s *SnapshotStore) ReadMetadata(_ context.Context, ticker string) (domain.MarketMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[ticker]
	if !ok {
		return domain.MarketMetadata{}, domain.ErrNotFound
	}
	return meta, nil
}

// Close is a no-op; the store holds no external resources.
func (s *SnapshotStore) Close() {}

func sortNewestFirst(snaps []domain.Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CapturedAt.After(snaps[j].CapturedAt)
	})
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
