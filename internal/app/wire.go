package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	s3blob "github.com/alanyoungcy/kalshiscan/internal/blob/s3"
	"github.com/alanyoungcy/kalshiscan/internal/cache/redis"
	"github.com/alanyoungcy/kalshiscan/internal/config"
	"github.com/alanyoungcy/kalshiscan/internal/detector"
	"github.com/alanyoungcy/kalshiscan/internal/domain"
	"github.com/alanyoungcy/kalshiscan/internal/notify"
	"github.com/alanyoungcy/kalshiscan/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiscan/internal/server/ws"
	"github.com/alanyoungcy/kalshiscan/internal/store/memory"
	"github.com/alanyoungcy/kalshiscan/internal/store/postgres"
)

// Dependencies bundles everything the scan loop needs. It is constructed by
// Wire and torn down by the returned cleanup function. Optional pieces stay
// nil when their config section is absent.
type Dependencies struct {
	Store    domain.SnapshotStore
	Kalshi   *kalshi.Client
	Detector *detector.Detector
	Notifier *notify.Notifier

	// Archiver is nil unless archive.bucket is set.
	Archiver *s3blob.SnapshotWriter

	// State and Events are nil unless redis.addr is set.
	State  *redis.StateCache
	Events *redis.EventBus

	// WSHub is nil unless the HTTP server is enabled.
	WSHub *ws.Hub
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Snapshot store, selected by driver ---
	switch strings.ToLower(cfg.Storage.Driver) {
	case "memory":
		deps.Store = memory.NewSnapshotStore()
	case "postgres":
		pgClient, err := postgres.New(ctx, pgClientConfig(cfg.Storage.Postgres))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Storage.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if applied > 0 {
				logger.Info("applied schema migrations", slog.Int("count", applied))
			}
		}
		deps.Store = postgres.NewSnapshotStore(pgClient)
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage driver %q", cfg.Storage.Driver)
	}

	// --- Redis (optional): cycle state plus the spike event bus ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.State = redis.NewStateCache(redisClient, cfg.Redis.StateTTL.Duration)
		deps.Events = redis.NewEventBus(redisClient, cfg.Redis.PublishChannel)
	}

	// --- S3 archive (optional) ---
	if cfg.Archive.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSnapshotWriter(s3Client, cfg.Archive.Prefix)
	}

	// --- Kalshi client (the token cache lives inside it) ---
	deps.Kalshi = kalshi.NewClient(kalshi.ClientConfig{
		BaseURL:  cfg.Kalshi.BaseURL,
		Email:    cfg.Kalshi.Email,
		Password: cfg.Kalshi.Password,
		Timeout:  cfg.Kalshi.Timeout.Duration,
		MaxPages: cfg.Scanner.MaxPages,
	})

	// --- Detector ---
	deps.Detector = detector.New(detector.Config{
		VolumeStdThreshold:         cfg.Scanner.VolumeStdThreshold,
		PriceSpikeThreshold:        cfg.Scanner.PriceSpikeThreshold,
		PriceWindowMinutes:         cfg.Scanner.PriceWindowMinutes,
		SpreadCompressionThreshold: cfg.Scanner.SpreadCompressionThreshold,
	})

	// --- WebSocket hub (only with the HTTP server) ---
	if cfg.Server.Enabled {
		deps.WSHub = ws.NewHub(logger)
	}

	// --- Alert fan-out ---
	var senders []notify.Sender
	if cfg.Notify.Console {
		senders = append(senders, notify.NewConsoleSender(os.Stdout))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if deps.Events != nil {
		senders = append(senders, deps.Events)
	}
	if deps.WSHub != nil {
		senders = append(senders, deps.WSHub)
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	return deps, cleanup, nil
}

// pgClientConfig maps the config section onto the postgres client config.
func pgClientConfig(c config.PostgresConfig) postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:      c.DSN,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
		MaxConns: c.PoolMaxConns,
		MinConns: c.PoolMinConns,
	}
}
