package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	client *Client
	pool   *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given client. The
// store owns the client's lifetime: Close shuts the pool down.
func NewSnapshotStore(client *Client) *SnapshotStore {
	return &SnapshotStore{client: client, pool: client.Pool()}
}

const snapshotCols = `ticker, captured_at, volume, open_interest, last_price, yes_bid, yes_ask`

// AppendBatch inserts all snapshots in a single batch round trip.
func (s *SnapshotStore) AppendBatch(ctx context.Context, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	const query = `
		INSERT INTO market_snapshots (
			ticker, captured_at, volume, open_interest, last_price, yes_bid, yes_ask
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(query,
			snap.Ticker, snap.CapturedAt, snap.Volume, snap.OpenInterest,
			snap.LastPrice, snap.YesBid, snap.YesAsk,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

// PruneOldest deletes, for every ticker, all but the maxPerTicker most recent
// snapshots. It returns the number of rows removed.
func (s *SnapshotStore) PruneOldest(ctx context.Context, maxPerTicker int) (int64, error) {
	const query = `
		WITH ranked AS (
			SELECT id,
			       ROW_NUMBER() OVER (PARTITION BY ticker ORDER BY captured_at DESC) AS rn
			FROM market_snapshots
		)
		DELETE FROM market_snapshots
		WHERE id IN (SELECT id FROM ranked WHERE rn > $1)`

	tag, err := s.pool.Exec(ctx, query, maxPerTicker)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPrunable returns the snapshots PruneOldest would delete, oldest first
// per ticker, so callers can archive them before pruning.
func (s *SnapshotStore) ListPrunable(ctx context.Context, maxPerTicker int) ([]domain.Snapshot, error) {
	const query = `
		WITH ranked AS (
			SELECT ` + snapshotCols + `,
			       ROW_NUMBER() OVER (PARTITION BY ticker ORDER BY captured_at DESC) AS rn
			FROM market_snapshots
		)
		SELECT ` + snapshotCols + `
		FROM ranked
		WHERE rn > $1
		ORDER BY ticker, captured_at`

	rows, err := s.pool.Query(ctx, query, maxPerTicker)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prunable snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan prunable snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list prunable snapshots rows: %w", err)
	}
	return snapshots, nil
}

// ReadAllHistories returns up to limitPerTicker snapshots for every ticker,
// newest first within each ticker.
func (s *SnapshotStore) ReadAllHistories(ctx context.Context, limitPerTicker int) (map[string][]domain.Snapshot, error) {
	const query = `
		WITH ranked AS (
			SELECT ` + snapshotCols + `,
			       ROW_NUMBER() OVER (PARTITION BY ticker ORDER BY captured_at DESC) AS rn
			FROM market_snapshots
		)
		SELECT ` + snapshotCols + `
		FROM ranked
		WHERE rn <= $1
		ORDER BY ticker, captured_at DESC`

	rows, err := s.pool.Query(ctx, query, limitPerTicker)
	if err != nil {
		return nil, fmt.Errorf("postgres: read histories: %w", err)
	}
	defer rows.Close()

	histories := make(map[string][]domain.Snapshot)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan history snapshot: %w", err)
		}
		histories[snap.Ticker] = append(histories[snap.Ticker], snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read histories rows: %w", err)
	}
	return histories, nil
}

// ReadHistory returns up to limit snapshots for one ticker, newest first.
func (s *SnapshotStore) ReadHistory(ctx context.Context, ticker string, limit int) ([]domain.Snapshot, error) {
	const query = `
		SELECT ` + snapshotCols + `
		FROM market_snapshots
		WHERE ticker = $1
		ORDER BY captured_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: read history %s: %w", ticker, err)
	}
	defer rows.Close()

	var snapshots []domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan history snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read history %s rows: %w", ticker, err)
	}
	return snapshots, nil
}

// UpsertMetadata inserts or refreshes the display metadata for one ticker.
func (s *SnapshotStore) UpsertMetadata(ctx context.Context, meta domain.MarketMetadata) error {
	const query = `
		INSERT INTO market_metadata (ticker, title, subtitle, url, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (ticker) DO UPDATE SET
			title      = EXCLUDED.title,
			subtitle   = EXCLUDED.subtitle,
			url        = EXCLUDED.url,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, meta.Ticker, meta.Title, meta.Subtitle, meta.URL)
	if err != nil {
		return fmt.Errorf("postgres: upsert metadata %s: %w", meta.Ticker, err)
	}
	return nil
}

// ReadMetadata returns the stored metadata for one ticker, or
// domain.ErrNotFound when the ticker has never been seen.
func (s *SnapshotStore) ReadMetadata(ctx context.Context, ticker string) (domain.MarketMetadata, error) {
	const query = `
		SELECT ticker, title, subtitle, url, updated_at
		FROM market_metadata
		WHERE ticker = $1`

	var meta domain.MarketMetadata
	err := s.pool.QueryRow(ctx, query, ticker).Scan(
		&meta.Ticker, &meta.Title, &meta.Subtitle, &meta.URL, &meta.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketMetadata{}, domain.ErrNotFound
		}
		return domain.MarketMetadata{}, fmt.Errorf("postgres: read metadata %s: %w", ticker, err)
	}
	return meta, nil
}

// Close shuts down the underlying connection pool.
func (s *SnapshotStore) Close() {
	s.client.Close()
}

// scanSnapshot scans one snapshot row.
func scanSnapshot(row pgx.Row) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := row.Scan(
		&snap.Ticker, &snap.CapturedAt, &snap.Volume, &snap.OpenInterest,
		&snap.LastPrice, &snap.YesBid, &snap.YesAsk,
	)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}
