// Package config defines the top-level configuration for the ledger daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTD_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Events   EventsConfig   `toml:"events"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig selects the storage backend and the ledger's fixed
// principals.
type LedgerConfig struct {
	// Backend is one of memory, sqlite, postgres, redis.
	Backend string `toml:"backend"`
	// Admin is installed by Initialize on first start.
	Admin          string `toml:"admin"`
	CustodyAddress string `toml:"custody_address"`
	DefaultAsset   string `toml:"default_asset"`
	// IDStrategy is counter (default) or hash.
	IDStrategy string `toml:"id_strategy"`
	// Superusers may act for any principal (operator tooling, the oracle
	// relay). Empty with no API tokens means every call is trusted.
	Superusers []string `toml:"superusers"`
}

// OracleConfig locates the oracle seed used by the attest command.
type OracleConfig struct {
	Seed             string `toml:"seed"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
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
	// Audit records every ledger event in audit_log even when another
	// backend holds the ledger.
	Audit bool `toml:"audit"`
}

// SQLiteConfig holds the embedded database path.
type SQLiteConfig struct {
	Path string `toml:"path"`
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
	// KeyPrefix namespaces ledger keys when Redis is the backend.
	KeyPrefix string `toml:"key_prefix"`
	// KeyTTL expires ledger keys no transaction has read or written for
	// this long. Zero keeps them forever.
	KeyTTL   duration `toml:"key_ttl"`
	LockTTL  duration `toml:"lock_ttl"`
	LockWait duration `toml:"lock_wait"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	KeyPrefix      string `toml:"key_prefix"`
}

// ArchiveConfig controls the audit-log archiver.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	// RetentionDays keeps this many days of events in the audit log.
	RetentionDays int  `toml:"retention_days"`
	Prune         bool `toml:"prune"`
}

// EventsConfig tunes the event dispatcher and outbound webhook.
type EventsConfig struct {
	Buffer         int      `toml:"buffer"`
	Channel        string   `toml:"channel"`
	Stream         string   `toml:"stream"`
	WebhookURL     string   `toml:"webhook_url"`
	WebhookSecret  string   `toml:"webhook_secret"`
	WebhookTimeout duration `toml:"webhook_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "30s", "5m").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APITokens maps bearer tokens to ledger principals.
	APITokens map[string]string `toml:"api_tokens"`
	// RateLimit is requests per RateWindow per caller. Needs Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	TelegramAPI       string `toml:"telegram_api"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	DiscordUsername   string `toml:"discord_username"`
	// Events lists the event topics that trigger a notification.
	Events []string `toml:"events"`
}

// Defaults returns a Config populated with sensible default values for local
// development.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Backend:        "sqlite",
			Admin:          "admin",
			CustodyAddress: "custody",
			DefaultAsset:   "collateral",
			IDStrategy:     "counter",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "data/ledger.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "ledger:",
			LockTTL:    duration{5 * time.Second},
			LockWait:   duration{10 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictledger",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Events: EventsConfig{
			Buffer:         1024,
			Channel:        "ch:ledger",
			Stream:         "stream:ledger",
			WebhookTimeout: duration{5 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "market_canceled", "position_settled"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

var validBackends = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
	"redis":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsPostgres reports whether the configuration opens a database pool.
func (c *Config) NeedsPostgres() bool {
	return c.Ledger.Backend == "postgres" || c.Postgres.Audit || c.NeedsArchive()
}

// NeedsRedis reports whether the configuration connects to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Ledger.Backend == "redis" || c.Redis.Enabled
}

// NeedsArchive reports whether the archiver runs in the configured mode.
func (c *Config) NeedsArchive() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "archive" || (mode == "full" && c.Archive.Enabled)
}

// Validate checks the configuration for obvious errors and returns all
// problems found in a single error.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !validBackends[c.Ledger.Backend] {
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: memory, sqlite, postgres, redis)", c.Ledger.Backend))
	}
	if c.Ledger.Admin == "" {
		errs = append(errs, "ledger: admin must not be empty")
	}
	if c.Ledger.CustodyAddress == "" {
		errs = append(errs, "ledger: custody_address must not be empty")
	}
	if c.Ledger.CustodyAddress == c.Ledger.Admin && c.Ledger.Admin != "" {
		errs = append(errs, "ledger: custody_address must differ from admin")
	}
	if c.Ledger.DefaultAsset == "" {
		errs = append(errs, "ledger: default_asset must not be empty")
	}
	switch c.Ledger.IDStrategy {
	case "", "counter", "hash":
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown id_strategy %q (valid: counter, hash)", c.Ledger.IDStrategy))
	}

	if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
		errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
	}

	if c.Ledger.Backend == "sqlite" && c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}

	if c.NeedsPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.NeedsRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.KeyTTL.Duration < 0 {
			errs = append(errs, "redis: key_ttl must not be negative")
		}
	}

	if c.NeedsArchive() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Events.Buffer < 1 {
		errs = append(errs, "events: buffer must be >= 1")
	}
	if c.Events.WebhookSecret != "" && c.Events.WebhookURL == "" {
		errs = append(errs, "events: webhook_secret is set without webhook_url")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		for token, principal := range c.Server.APITokens {
			if token == "" || principal == "" {
				errs = append(errs, "server: api_tokens entries need a token and a principal")
				break
			}
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
