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
// built-in defaults, applies PREDICTD_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "PREDICTD_LEDGER_BACKEND")
	setStr(&cfg.Ledger.Admin, "PREDICTD_LEDGER_ADMIN")
	setStr(&cfg.Ledger.CustodyAddress, "PREDICTD_LEDGER_CUSTODY_ADDRESS")
	setStr(&cfg.Ledger.DefaultAsset, "PREDICTD_LEDGER_DEFAULT_ASSET")
	setStr(&cfg.Ledger.IDStrategy, "PREDICTD_LEDGER_ID_STRATEGY")
	setStringSlice(&cfg.Ledger.Superusers, "PREDICTD_LEDGER_SUPERUSERS")

	// ── Oracle ──
	setStr(&cfg.Oracle.Seed, "PREDICTD_ORACLE_SEED")
	setStr(&cfg.Oracle.EncryptedKeyPath, "PREDICTD_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "PREDICTD_ORACLE_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PREDICTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTD_POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.Audit, "PREDICTD_POSTGRES_AUDIT")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "PREDICTD_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PREDICTD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PREDICTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTD_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PREDICTD_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.KeyTTL, "PREDICTD_REDIS_KEY_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTD_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.KeyPrefix, "PREDICTD_S3_KEY_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDICTD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "PREDICTD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "PREDICTD_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.Prune, "PREDICTD_ARCHIVE_PRUNE")

	// ── Events ──
	setInt(&cfg.Events.Buffer, "PREDICTD_EVENTS_BUFFER")
	setStr(&cfg.Events.WebhookURL, "PREDICTD_EVENTS_WEBHOOK_URL")
	setStr(&cfg.Events.WebhookSecret, "PREDICTD_EVENTS_WEBHOOK_SECRET")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTD_SERVER_CORS_ORIGINS")
	setTokenMap(&cfg.Server.APITokens, "PREDICTD_SERVER_API_TOKENS")
	setInt(&cfg.Server.RateLimit, "PREDICTD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PREDICTD_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTD_MODE")
	setStr(&cfg.LogLevel, "PREDICTD_LOG_LEVEL")
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

// setTokenMap parses "token=principal" pairs separated by commas.
func setTokenMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		token, principal, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || principal == "" {
			continue
		}
		out[token] = principal
	}
	if len(out) > 0 {
		*dst = out
	}
}
