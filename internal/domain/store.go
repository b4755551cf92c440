package domain

import "context"

// SnapshotStore is the bounded per-ticker time-series behind the scanner.
// Histories handed out by read methods are ordered newest-first; the retention
// bound is enforced here, never by the detector.
type SnapshotStore interface {
	// AppendBatch stores one cycle's snapshots as a single batch write.
	AppendBatch(ctx context.Context, snaps []Snapshot) error

	// PruneOldest deletes, per ticker, the oldest snapshots beyond maxPerTicker
	// and reports the total number of rows removed.
	PruneOldest(ctx context.Context, maxPerTicker int) (int64, error)

	// ListPrunable returns the snapshots PruneOldest would delete, for
	// archiving ahead of the prune.
	ListPrunable(ctx context.Context, maxPerTicker int) ([]Snapshot, error)

	// ReadAllHistories returns up to limitPerTicker snapshots for every known
	// ticker, newest first.
	ReadAllHistories(ctx context.Context, limitPerTicker int) (map[string][]Snapshot, error)

	// ReadHistory returns up to limit snapshots for one ticker, newest first.
	ReadHistory(ctx context.Context, ticker string, limit int) ([]Snapshot, error)

	// UpsertMetadata records the descriptive fields for a ticker; repeated
	// calls leave exactly one row reflecting the latest values.
	UpsertMetadata(ctx context.Context, meta MarketMetadata) error

	// ReadMetadata returns the metadata for a ticker or ErrNotFound.
	ReadMetadata(ctx context.Context, ticker string) (MarketMetadata, error)

	Close()
}
