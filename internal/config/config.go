// Package config defines the top-level configuration for the Kalshi market
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KALSHISCAN_* environment variables
// plus the well-known secret variables (KALSHI_EMAIL, KALSHI_PASSWORD,
// DISCORD_WEBHOOK_URL, TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID).
type Config struct {
	Kalshi  KalshiConfig  `toml:"kalshi"`
	Scanner ScannerConfig `toml:"scanner"`
	Storage StorageConfig `toml:"storage"`
	Redis   RedisConfig   `toml:"redis"`
	Archive ArchiveConfig `toml:"archive"`
	Notify  NotifyConfig  `toml:"notify"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// KalshiConfig holds exchange endpoints and login credentials.
type KalshiConfig struct {
	BaseURL  string   `toml:"base_url"`
	WsURL    string   `toml:"ws_url"`
	Email    string   `toml:"email"`
	Password string   `toml:"password"`
	Timeout  duration `toml:"timeout"`
}

// ScannerConfig holds the poll cadence and detection thresholds.
type ScannerConfig struct {
	Interval         duration `toml:"interval"`
	MaxHistoryPoints int      `toml:"max_history_points"`
	// VolumeStdThreshold is the z-score a volume acceleration must reach.
	VolumeStdThreshold float64 `toml:"volume_std_threshold"`
	// PriceSpikeThreshold is the absolute move in dollars within the window.
	PriceSpikeThreshold float64 `toml:"price_spike_threshold"`
	PriceWindowMinutes  int     `toml:"price_window_minutes"`
	// SpreadCompressionThreshold is the fractional narrowing required, 0-1.
	SpreadCompressionThreshold float64 `toml:"spread_compression_threshold"`
	// MaxPages bounds cursor-following during a full market fetch.
	MaxPages int `toml:"max_pages"`
}

// StorageConfig selects and parameterizes the snapshot store.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver   string         `toml:"driver"`
	Postgres PostgresConfig `toml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds optional Redis parameters. An empty Addr disables both the
// scan-state record and the spike-event publisher.
type RedisConfig struct {
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	StateTTL       duration `toml:"state_ttl"`
	PublishChannel string   `toml:"publish_channel"`
}

// ArchiveConfig holds optional S3-compatible storage for snapshots that are
// about to be pruned. An empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key_id"`
	SecretKey      string `toml:"secret_access_key"`
	Prefix         string `toml:"prefix"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds alert destination settings.
type NotifyConfig struct {
	Console           bool   `toml:"console"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	TelegramToken     string `toml:"telegram_bot_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// LogConfig controls log verbosity and output encoding.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is "json" or "text".
	Format string `toml:"format"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "60s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the stock scanner settings.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
			Timeout: duration{30 * time.Second},
		},
		Scanner: ScannerConfig{
			Interval:                   duration{60 * time.Second},
			MaxHistoryPoints:           100,
			VolumeStdThreshold:         2.0,
			PriceSpikeThreshold:        0.10,
			PriceWindowMinutes:         5,
			SpreadCompressionThreshold: 0.5,
			MaxPages:                   500,
		},
		Storage: StorageConfig{
			Driver: "postgres",
			Postgres: PostgresConfig{
				Host:          "localhost",
				Port:          5432,
				Database:      "kalshiscan",
				User:          "kalshiscan",
				SSLMode:       "disable",
				PoolMaxConns:  8,
				PoolMinConns:  1,
				RunMigrations: true,
			},
		},
		Redis: RedisConfig{
			StateTTL:       duration{24 * time.Hour},
			PublishChannel: "spikes",
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: "archive",
			UseSSL: true,
		},
		Notify: NotifyConfig{
			Console: true,
		},
		Server: ServerConfig{
			Enabled: false,
			Port:    8090,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// validLogLevels enumerates the accepted values for LogConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats enumerates the accepted values for LogConfig.Format.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// validDrivers enumerates the accepted values for StorageConfig.Driver.
var validDrivers = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Credentials are required;
// callers that never talk to the exchange can skip Validate and check only the
// sections they use.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, text)", c.Log.Format))
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.Email == "" {
		errs = append(errs, "kalshi: email is not set (set KALSHI_EMAIL)")
	}
	if c.Kalshi.Password == "" {
		errs = append(errs, "kalshi: password is not set (set KALSHI_PASSWORD)")
	}
	if c.Kalshi.Timeout.Duration <= 0 {
		errs = append(errs, "kalshi: timeout must be positive")
	}

	// Scanner
	if c.Scanner.Interval.Duration < time.Second {
		errs = append(errs, fmt.Sprintf("scanner: interval must be at least 1s, got %s", c.Scanner.Interval.Duration))
	}
	if c.Scanner.MaxHistoryPoints < 2 {
		errs = append(errs, "scanner: max_history_points must be >= 2")
	}
	if c.Scanner.VolumeStdThreshold <= 0 {
		errs = append(errs, "scanner: volume_std_threshold must be > 0")
	}
	if c.Scanner.PriceSpikeThreshold <= 0 {
		errs = append(errs, "scanner: price_spike_threshold must be > 0")
	}
	if c.Scanner.PriceWindowMinutes < 1 {
		errs = append(errs, "scanner: price_window_minutes must be >= 1")
	}
	if c.Scanner.SpreadCompressionThreshold <= 0 || c.Scanner.SpreadCompressionThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("scanner: spread_compression_threshold must be in (0, 1), got %v", c.Scanner.SpreadCompressionThreshold))
	}
	if c.Scanner.MaxPages < 1 {
		errs = append(errs, "scanner: max_pages must be >= 1")
	}

	// Storage
	if !validDrivers[strings.ToLower(c.Storage.Driver)] {
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: postgres, memory)", c.Storage.Driver))
	}
	if strings.ToLower(c.Storage.Driver) == "postgres" && strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
		if c.Storage.Postgres.Host == "" {
			errs = append(errs, "storage.postgres: host must not be empty (or set storage.postgres.dsn)")
		}
		if c.Storage.Postgres.Port <= 0 || c.Storage.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("storage.postgres: port must be 1-65535, got %d", c.Storage.Postgres.Port))
		}
		if c.Storage.Postgres.Database == "" {
			errs = append(errs, "storage.postgres: database must not be empty")
		}
	}
	if c.Storage.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "storage.postgres: pool_max_conns must be >= 1")
	}
	if c.Storage.Postgres.PoolMinConns < 0 || c.Storage.Postgres.PoolMinConns > c.Storage.Postgres.PoolMaxConns {
		errs = append(errs, "storage.postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis (optional)
	if c.Redis.Addr != "" {
		if c.Redis.DB < 0 {
			errs = append(errs, "redis: db must be >= 0")
		}
		if c.Redis.PublishChannel == "" {
			errs = append(errs, "redis: publish_channel must not be empty when redis is enabled")
		}
	}

	// Archive (optional)
	if c.Archive.Bucket != "" {
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when bucket is set")
		}
		if c.Archive.Prefix == "" {
			errs = append(errs, "archive: prefix must not be empty when bucket is set")
		}
	}

	// Notify — telegram fields must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_bot_token and telegram_chat_id must be set together")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
