// Package config defines the top-level configuration for the reconciliation
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by RECONBOT_* environment
// variables.
type Config struct {
	Recon    ReconConfig    `toml:"recon"`
	Feed     FeedConfig     `toml:"feed"`
	Seed     SeedConfig     `toml:"seed"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ReconConfig holds the reconciliation core parameters. All values are fixed
// at startup; the rule thresholds are never changed mid-run.
type ReconConfig struct {
	SLAMinutes       int     `toml:"sla_minutes"`
	PriceTolerance   float64 `toml:"price_tolerance"`
	EscalateAfterMs  int     `toml:"escalate_after_ms"`
	QueueSize        int     `toml:"queue_size"`
	SubscriberBuffer int     `toml:"subscriber_buffer"`
	DrainOnClose     bool    `toml:"drain_on_close"`
}

// FeedConfig holds ingestion producer parameters.
type FeedConfig struct {
	// CSV seed replay.
	TradesCSV   string `toml:"trades_csv"`
	ConfirmsCSV string `toml:"confirms_csv"`
	ThrottleMs  int    `toml:"throttle_ms"`
	MaxTrades   int    `toml:"max_trades"`

	// Live Binance aggTrade feed.
	BinanceEnabled bool     `toml:"binance_enabled"`
	BinanceWSURL   string   `toml:"binance_ws_url"`
	Symbols        []string `toml:"symbols"`
	// BreakRate is the fraction of live confirms mutated to exercise the
	// rule set (0.02 = 2%).
	BreakRate float64 `toml:"break_rate"`
}

// SeedConfig holds the demo CSV generator parameters (seed mode).
type SeedConfig struct {
	TradesOut   string  `toml:"trades_out"`
	ConfirmsOut string  `toml:"confirms_out"`
	Count       int     `toml:"count"`
	BreakRate   float64 `toml:"break_rate"`
	RandomSeed  int64   `toml:"random_seed"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the journal.
type DatabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// BreakChannel is the pub/sub channel detected breaks are mirrored to.
	BreakChannel string `toml:"break_channel"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the periodic journal/break archive job.
type ArchiveConfig struct {
	Enabled       bool `toml:"enabled"`
	IntervalHours int  `toml:"interval_hours"`
	RetainDays    int  `toml:"retain_days"`
}

// ServerConfig holds the HTTP/WebSocket API parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow int      `toml:"rate_limit_window_sec"`
}

// NotifyConfig holds notification channel parameters. MinSeverity sets the
// alert threshold ("Low", "Medium", "High"); empty forwards every break.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	MinSeverity       string `toml:"min_severity"`
}

// Defaults returns a Config pre-populated with sensible defaults for a local
// deployment. Load merges the TOML file on top of these.
func Defaults() Config {
	return Config{
		Recon: ReconConfig{
			SLAMinutes:       180,
			PriceTolerance:   0.005,
			EscalateAfterMs:  250,
			QueueSize:        4096,
			SubscriberBuffer: 64,
			DrainOnClose:     true,
		},
		Feed: FeedConfig{
			TradesCSV:    "seed_data/dtcc_sample_trades.csv",
			ConfirmsCSV:  "seed_data/dtcc_sample_confirms.csv",
			ThrottleMs:   2,
			MaxTrades:    1000,
			BinanceWSURL: "wss://stream.binance.com:9443/stream",
			Symbols:      []string{"btcusdt", "ethusdt"},
			BreakRate:    0.02,
		},
		Seed: SeedConfig{
			TradesOut:   "seed_data/dtcc_sample_trades.csv",
			ConfirmsOut: "seed_data/dtcc_sample_confirms.csv",
			Count:       1200,
			BreakRate:   0.06,
			RandomSeed:  7,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			BreakChannel: "breaks",
		},
		Archive: ArchiveConfig{
			IntervalHours: 24,
			RetainDays:    30,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			RateLimit:       100,
			RateLimitWindow: 1,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency. It should be
// called after Load.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "replay", "seed":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Recon.SLAMinutes <= 0 {
		return fmt.Errorf("config: recon.sla_minutes must be > 0, got %d", c.Recon.SLAMinutes)
	}
	if c.Recon.PriceTolerance <= 0 || c.Recon.PriceTolerance >= 1 {
		return fmt.Errorf("config: recon.price_tolerance must be in (0, 1), got %g", c.Recon.PriceTolerance)
	}
	if c.Recon.EscalateAfterMs <= 0 {
		return fmt.Errorf("config: recon.escalate_after_ms must be > 0, got %d", c.Recon.EscalateAfterMs)
	}
	if c.Recon.QueueSize <= 0 {
		return fmt.Errorf("config: recon.queue_size must be > 0, got %d", c.Recon.QueueSize)
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	if c.Feed.BinanceEnabled {
		if c.Feed.BinanceWSURL == "" {
			return fmt.Errorf("config: feed.binance_ws_url is required when the binance feed is enabled")
		}
		if len(c.Feed.Symbols) == 0 {
			return fmt.Errorf("config: feed.symbols must not be empty when the binance feed is enabled")
		}
		if c.Feed.BreakRate < 0 || c.Feed.BreakRate > 1 {
			return fmt.Errorf("config: feed.break_rate must be in [0, 1], got %g", c.Feed.BreakRate)
		}
	}

	if c.Database.Enabled && c.Database.DSN == "" && c.Database.Database == "" {
		return fmt.Errorf("config: database requires either a dsn or a database name")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("config: s3.bucket is required when s3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("config: s3.region is required when s3 is enabled")
		}
	}
	if c.Archive.Enabled && !c.S3.Enabled {
		return fmt.Errorf("config: archive requires s3 to be enabled")
	}

	return nil
}
