package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/kalshiscan/internal/cache/redis"
	"github.com/alanyoungcy/kalshiscan/internal/domain"
	"github.com/alanyoungcy/kalshiscan/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiscan/internal/store/memory"
	"github.com/alanyoungcy/kalshiscan/internal/store/postgres"
)

// One-shot entrypoints for the CLI subcommands. Each builds only the
// dependencies its command needs rather than going through Wire.

// FetchMarkets logs in and returns the current open-market universe.
func (a *App) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	if err := a.requireCredentials(); err != nil {
		return nil, err
	}
	markets, err := a.newKalshiClient().ListOpenMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: fetch markets: %w", err)
	}
	return markets, nil
}

// MarketHistory reads the stored metadata and up to limit snapshots for one
// ticker, newest first. Missing metadata is not an error; the zero value is
// returned alongside whatever history exists.
func (a *App) MarketHistory(ctx context.Context, ticker string, limit int) (domain.MarketMetadata, []domain.Snapshot, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return domain.MarketMetadata{}, nil, err
	}
	defer closeStore()

	meta, err := store.ReadMetadata(ctx, ticker)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.MarketMetadata{}, nil, fmt.Errorf("app: read metadata: %w", err)
	}

	history, err := store.ReadHistory(ctx, ticker, limit)
	if err != nil {
		return meta, nil, fmt.Errorf("app: read history: %w", err)
	}
	return meta, history, nil
}

// ReadState returns the last cycle summary recorded in Redis by a running
// scanner. It returns domain.ErrNotFound when no scanner has reported within
// the state TTL.
func (a *App) ReadState(ctx context.Context) (domain.CycleStats, error) {
	redisClient, err := a.openRedis(ctx)
	if err != nil {
		return domain.CycleStats{}, err
	}
	defer redisClient.Close()

	return redis.NewStateCache(redisClient, a.cfg.Redis.StateTTL.Duration).LastCycle(ctx)
}

// RecentSpikes returns up to limit of the most recently published spike
// events, newest first.
func (a *App) RecentSpikes(ctx context.Context, limit int) ([]domain.SpikeEvent, error) {
	redisClient, err := a.openRedis(ctx)
	if err != nil {
		return nil, err
	}
	defer redisClient.Close()

	return redis.NewEventBus(redisClient, a.cfg.Redis.PublishChannel).Recent(ctx, limit)
}

// FollowSpikes subscribes to the live spike feed and invokes onEvent for each
// published event until the context is cancelled.
func (a *App) FollowSpikes(ctx context.Context, onEvent func(domain.SpikeEvent)) error {
	redisClient, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	events, err := redis.NewEventBus(redisClient, a.cfg.Redis.PublishChannel).Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		onEvent(ev)
	}
	return nil
}

// WatchTickers streams live quote updates for the given tickers to onUpdate
// until the context is cancelled.
func (a *App) WatchTickers(ctx context.Context, tickers []string, onUpdate func(kalshi.TickerUpdate)) error {
	if err := a.requireCredentials(); err != nil {
		return err
	}
	client := a.newKalshiClient()

	wsClient := kalshi.NewWSClient(a.cfg.Kalshi.WsURL, client.Tokens())
	wsClient.OnTicker(onUpdate)

	if err := wsClient.Watch(ctx, tickers); err != nil {
		return fmt.Errorf("app: watch: %w", err)
	}
	return nil
}

// openRedis connects to the configured Redis instance for commands that read
// scanner state. It fails fast when redis is not configured.
func (a *App) openRedis(ctx context.Context) (*redis.Client, error) {
	if a.cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("app: redis is not configured (set redis.addr)")
	}

	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("app: redis: %w", err)
	}
	return redisClient, nil
}

// requireCredentials rejects exchange-facing commands early when the login
// credentials are missing, instead of letting the first API call fail.
func (a *App) requireCredentials() error {
	if a.cfg.Kalshi.Email == "" || a.cfg.Kalshi.Password == "" {
		return fmt.Errorf("app: kalshi credentials not set (set KALSHI_EMAIL and KALSHI_PASSWORD): %w", domain.ErrInvalidConfig)
	}
	return nil
}

func (a *App) newKalshiClient() *kalshi.Client {
	return kalshi.NewClient(kalshi.ClientConfig{
		BaseURL:  a.cfg.Kalshi.BaseURL,
		Email:    a.cfg.Kalshi.Email,
		Password: a.cfg.Kalshi.Password,
		Timeout:  a.cfg.Kalshi.Timeout.Duration,
		MaxPages: a.cfg.Scanner.MaxPages,
	})
}

// openStore builds the snapshot store for read-only commands. Migrations are
// not run here; only the scanner writes the schema.
func (a *App) openStore(ctx context.Context) (domain.SnapshotStore, func(), error) {
	switch strings.ToLower(a.cfg.Storage.Driver) {
	case "memory":
		return memory.NewSnapshotStore(), func() {}, nil
	case "postgres":
		pgClient, err := postgres.New(ctx, pgClientConfig(a.cfg.Storage.Postgres))
		if err != nil {
			return nil, nil, fmt.Errorf("app: postgres: %w", err)
		}
		return postgres.NewSnapshotStore(pgClient), pgClient.Close, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown storage driver %q", a.cfg.Storage.Driver)
	}
}
