package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RECONBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RECONBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Recon ──
	setInt(&cfg.Recon.SLAMinutes, "RECONBOT_RECON_SLA_MINUTES")
	setFloat64(&cfg.Recon.PriceTolerance, "RECONBOT_RECON_PRICE_TOLERANCE")
	setInt(&cfg.Recon.EscalateAfterMs, "RECONBOT_RECON_ESCALATE_AFTER_MS")
	setInt(&cfg.Recon.QueueSize, "RECONBOT_RECON_QUEUE_SIZE")
	setInt(&cfg.Recon.SubscriberBuffer, "RECONBOT_RECON_SUBSCRIBER_BUFFER")
	setBool(&cfg.Recon.DrainOnClose, "RECONBOT_RECON_DRAIN_ON_CLOSE")

	// ── Feed ──
	setStr(&cfg.Feed.TradesCSV, "RECONBOT_FEED_TRADES_CSV")
	setStr(&cfg.Feed.ConfirmsCSV, "RECONBOT_FEED_CONFIRMS_CSV")
	setInt(&cfg.Feed.ThrottleMs, "RECONBOT_FEED_THROTTLE_MS")
	setInt(&cfg.Feed.MaxTrades, "RECONBOT_FEED_MAX_TRADES")
	setBool(&cfg.Feed.BinanceEnabled, "RECONBOT_FEED_BINANCE_ENABLED")
	setStr(&cfg.Feed.BinanceWSURL, "RECONBOT_FEED_BINANCE_WS_URL")
	setStringSlice(&cfg.Feed.Symbols, "RECONBOT_FEED_SYMBOLS")
	setFloat64(&cfg.Feed.BreakRate, "RECONBOT_FEED_BREAK_RATE")

	// ── Database ──
	setBool(&cfg.Database.Enabled, "RECONBOT_DATABASE_ENABLED")
	setStr(&cfg.Database.DSN, "RECONBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "RECONBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "RECONBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "RECONBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "RECONBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "RECONBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "RECONBOT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "RECONBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "RECONBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "RECONBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RECONBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RECONBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RECONBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RECONBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RECONBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RECONBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RECONBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.BreakChannel, "RECONBOT_REDIS_BREAK_CHANNEL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RECONBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RECONBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RECONBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "RECONBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RECONBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RECONBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RECONBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RECONBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "RECONBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.IntervalHours, "RECONBOT_ARCHIVE_INTERVAL_HOURS")
	setInt(&cfg.Archive.RetainDays, "RECONBOT_ARCHIVE_RETAIN_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RECONBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RECONBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RECONBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RECONBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "RECONBOT_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateLimitWindow, "RECONBOT_SERVER_RATE_LIMIT_WINDOW_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RECONBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RECONBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RECONBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.MinSeverity, "RECONBOT_NOTIFY_MIN_SEVERITY")

	// ── Top-level ──
	setStr(&cfg.Mode, "RECONBOT_MODE")
	setStr(&cfg.LogLevel, "RECONBOT_LOG_LEVEL")
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
