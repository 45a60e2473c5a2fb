package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULTD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known VAULTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Structured settings like the vault list are TOML-only.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "VAULTD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "VAULTD_CHAIN_ID")

	// ── Aggregator ──
	setStr(&cfg.Aggregator.ZeroExHost, "VAULTD_AGGREGATOR_ZEROEX_HOST")
	setStr(&cfg.Aggregator.ZeroExAPIKey, "VAULTD_AGGREGATOR_ZEROEX_API_KEY")
	setStr(&cfg.Aggregator.OneInchHost, "VAULTD_AGGREGATOR_ONEINCH_HOST")
	setStr(&cfg.Aggregator.OneInchKey, "VAULTD_AGGREGATOR_ONEINCH_API_KEY")

	// ── Database ──
	setStr(&cfg.Database.DSN, "VAULTD_DATABASE_DSN")
	setStr(&cfg.Database.Host, "VAULTD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "VAULTD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "VAULTD_DATABASE_NAME")
	setStr(&cfg.Database.User, "VAULTD_DATABASE_USER")
	setStr(&cfg.Database.Password, "VAULTD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "VAULTD_DATABASE_SSL_MODE")
	setBool(&cfg.Database.RunMigrations, "VAULTD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VAULTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULTD_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "VAULTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VAULTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VAULTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULTD_S3_USE_SSL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "VAULTD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "VAULTD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "VAULTD_ARCHIVE_INTERVAL")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "VAULTD_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "VAULTD_SNAPSHOT_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VAULTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VAULTD_SERVER_PORT")
	setStr(&cfg.Server.APIToken, "VAULTD_SERVER_API_TOKEN")
	setInt(&cfg.Server.RateLimit, "VAULTD_SERVER_RATE_LIMIT")
	setStringSlice(&cfg.Server.CORSOrigins, "VAULTD_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VAULTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VAULTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VAULTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VAULTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VAULTD_MODE")
	setStr(&cfg.LogLevel, "VAULTD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
