package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. A missing file is not an error; the defaults plus environment
// carry a usable configuration. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set (i.e. not empty). This
// lets operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "KALSHISCAN_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "KALSHISCAN_KALSHI_WS_URL")
	setDuration(&cfg.Kalshi.Timeout, "KALSHISCAN_KALSHI_TIMEOUT")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "KALSHISCAN_SCANNER_INTERVAL")
	setInt(&cfg.Scanner.MaxHistoryPoints, "KALSHISCAN_SCANNER_MAX_HISTORY_POINTS")
	setFloat64(&cfg.Scanner.VolumeStdThreshold, "KALSHISCAN_SCANNER_VOLUME_STD_THRESHOLD")
	setFloat64(&cfg.Scanner.PriceSpikeThreshold, "KALSHISCAN_SCANNER_PRICE_SPIKE_THRESHOLD")
	setInt(&cfg.Scanner.PriceWindowMinutes, "KALSHISCAN_SCANNER_PRICE_WINDOW_MINUTES")
	setFloat64(&cfg.Scanner.SpreadCompressionThreshold, "KALSHISCAN_SCANNER_SPREAD_COMPRESSION_THRESHOLD")
	setInt(&cfg.Scanner.MaxPages, "KALSHISCAN_SCANNER_MAX_PAGES")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "KALSHISCAN_STORAGE_DRIVER")
	setStr(&cfg.Storage.Postgres.DSN, "KALSHISCAN_POSTGRES_DSN")
	setStr(&cfg.Storage.Postgres.Host, "KALSHISCAN_POSTGRES_HOST")
	setInt(&cfg.Storage.Postgres.Port, "KALSHISCAN_POSTGRES_PORT")
	setStr(&cfg.Storage.Postgres.Database, "KALSHISCAN_POSTGRES_DATABASE")
	setStr(&cfg.Storage.Postgres.User, "KALSHISCAN_POSTGRES_USER")
	setStr(&cfg.Storage.Postgres.Password, "KALSHISCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Storage.Postgres.SSLMode, "KALSHISCAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Storage.Postgres.PoolMaxConns, "KALSHISCAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Storage.Postgres.PoolMinConns, "KALSHISCAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Storage.Postgres.RunMigrations, "KALSHISCAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KALSHISCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHISCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHISCAN_REDIS_DB")
	setDuration(&cfg.Redis.StateTTL, "KALSHISCAN_REDIS_STATE_TTL")
	setStr(&cfg.Redis.PublishChannel, "KALSHISCAN_REDIS_PUBLISH_CHANNEL")

	// ── Archive ──
	setStr(&cfg.Archive.Bucket, "KALSHISCAN_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.Region, "KALSHISCAN_ARCHIVE_REGION")
	setStr(&cfg.Archive.Endpoint, "KALSHISCAN_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.AccessKey, "KALSHISCAN_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "KALSHISCAN_ARCHIVE_SECRET_KEY")
	setStr(&cfg.Archive.Prefix, "KALSHISCAN_ARCHIVE_PREFIX")
	setBool(&cfg.Archive.ForcePathStyle, "KALSHISCAN_ARCHIVE_FORCE_PATH_STYLE")

	// ── Notify ──
	setBool(&cfg.Notify.Console, "KALSHISCAN_NOTIFY_CONSOLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "KALSHISCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "KALSHISCAN_SERVER_PORT")

	// ── Log ──
	setStr(&cfg.Log.Level, "KALSHISCAN_LOG_LEVEL")
	setStr(&cfg.Log.Format, "KALSHISCAN_LOG_FORMAT")

	// Well-known secret variables keep their unprefixed names so existing
	// deployments and .env files work unchanged.
	setStr(&cfg.Kalshi.Email, "KALSHI_EMAIL")
	setStr(&cfg.Kalshi.Password, "KALSHI_PASSWORD")
	setStr(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
