package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// lastCycleKey is where the most recent cycle summary lives.
const lastCycleKey = "kalshiscan:last_cycle"

// StateCache keeps the latest poll-cycle summary in Redis so the status
// endpoint and CLI can report on a scanner running in another process.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStateCache creates a StateCache backed by the given Client. Entries
// expire after ttl; a stale scanner therefore reads as absent rather than
// reporting hours-old numbers as current.
func NewStateCache(c *Client, ttl time.Duration) *StateCache {
	return &StateCache{rdb: c.Underlying(), ttl: ttl}
}

// SetLastCycle stores the summary of the cycle that just finished.
func (sc *StateCache) SetLastCycle(ctx context.Context, stats domain.CycleStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("redis: marshal cycle stats: %w", err)
	}

	if err := sc.rdb.Set(ctx, lastCycleKey, data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set last cycle: %w", err)
	}
	return nil
}

// LastCycle returns the most recent cycle summary. It returns
// domain.ErrNotFound when no scanner has reported within the TTL.
func (sc *StateCache) LastCycle(ctx context.Context) (domain.CycleStats, error) {
	data, err := sc.rdb.Get(ctx, lastCycleKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CycleStats{}, domain.ErrNotFound
		}
		return domain.CycleStats{}, fmt.Errorf("redis: get last cycle: %w", err)
	}

	var stats domain.CycleStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.CycleStats{}, fmt.Errorf("redis: unmarshal cycle stats: %w", err)
	}
	return stats, nil
}
