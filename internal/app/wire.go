package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictledger/internal/auth"
	s3blob "github.com/alanyoungcy/predictledger/internal/blob/s3"
	"github.com/alanyoungcy/predictledger/internal/cache/redis"
	"github.com/alanyoungcy/predictledger/internal/config"
	"github.com/alanyoungcy/predictledger/internal/custody"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/events"
	"github.com/alanyoungcy/predictledger/internal/notify"
	"github.com/alanyoungcy/predictledger/internal/server/handler"
	"github.com/alanyoungcy/predictledger/internal/service"
	"github.com/alanyoungcy/predictledger/internal/store/memory"
	"github.com/alanyoungcy/predictledger/internal/store/postgres"
	"github.com/alanyoungcy/predictledger/internal/store/sqlite"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger
	Host    domain.TxRunner
	Backend string
	Core    *service.Core

	// Events
	Dispatcher *events.Dispatcher
	SignalBus  domain.SignalBus
	Notifier   *notify.Notifier

	// Optional infrastructure; nil when not configured.
	AuditStore  domain.AuditStore
	RateLimiter domain.RateLimiter
	Archiver    domain.Archiver
	History     handler.MarketHistorySource

	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Backend:      cfg.Ledger.Backend,
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- PostgreSQL: ledger host, audit log, archive source ---
	var auditStore *postgres.AuditStore
	if cfg.NeedsPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		auditStore = postgres.NewAuditStore(pool)
		deps.AuditStore = auditStore
		deps.HealthChecks["postgres"] = pgClient.Ping
		deps.History = auditStore
		if cfg.Ledger.Backend == "postgres" {
			deps.Host = postgres.NewKVStore(pool)
		}
	}

	// --- Redis: ledger host, lock, signal bus, rate limiter ---
	if cfg.NeedsRedis() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, 0)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
		if cfg.Ledger.Backend == "redis" {
			deps.Host = redis.NewKVStore(redisClient, redis.NewLockManager(redisClient, cfg.Redis.KeyPrefix), redis.KVConfig{
				Prefix:   cfg.Redis.KeyPrefix,
				TTL:      cfg.Redis.KeyTTL.Duration,
				LockTTL:  cfg.Redis.LockTTL.Duration,
				LockWait: cfg.Redis.LockWait.Duration,
			})
		}
	} else {
		deps.SignalBus = events.NewLocalBus()
	}

	// --- Embedded hosts ---
	switch cfg.Ledger.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Host = db
	case "memory":
		deps.Host = memory.New()
	}
	if deps.Host == nil {
		return fail(fmt.Errorf("wire: no ledger host for backend %q", cfg.Ledger.Backend))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(notify.TelegramConfig{
			Token:       cfg.Notify.TelegramToken,
			ChatID:      cfg.Notify.TelegramChatID,
			APIEndpoint: cfg.Notify.TelegramAPI,
		})
		if err != nil {
			logger.WarnContext(ctx, "wire: telegram disabled", slog.String("error", err.Error()))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Event fan-out ---
	sinks := []events.Sink{
		events.NewLogSink(logger),
		events.NewBusSink(deps.SignalBus, cfg.Events.Channel, cfg.Events.Stream),
	}
	if auditStore != nil {
		sinks = append(sinks, events.NewAuditSink(auditStore))
	}
	if deps.Notifier.Enabled() {
		sinks = append(sinks, events.NewNotifySink(deps.Notifier))
	}
	if cfg.Events.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.Events.WebhookURL, cfg.Events.WebhookSecret, cfg.Events.WebhookTimeout.Duration))
	}
	deps.Dispatcher = events.NewDispatcher(cfg.Events.Buffer, logger, sinks...)

	// --- Ledger core ---
	ids, ok := service.IDStrategy(cfg.Ledger.IDStrategy)
	if !ok {
		return fail(fmt.Errorf("wire: unknown id strategy %q", cfg.Ledger.IDStrategy))
	}
	var authz domain.Authorizer = auth.AllowAll{}
	if len(cfg.Server.APITokens) > 0 {
		authz = auth.NewContextAuthorizer(cfg.Ledger.Superusers...)
	}
	deps.Core = service.NewCore(service.Ports{
		Host:     deps.Host,
		Transfer: custody.NewLedger(),
		Auth:     authz,
		Sink:     deps.Dispatcher,
		IDs:      ids,
	}, service.Config{
		CustodyAddress: cfg.Ledger.CustodyAddress,
		DefaultAsset:   cfg.Ledger.DefaultAsset,
	}, logger)

	admin := cfg.Ledger.Admin
	if err := deps.Core.Initialize(auth.WithPrincipal(ctx, admin), admin); err != nil {
		return fail(fmt.Errorf("wire: initialize ledger for %q: %w", admin, err))
	}

	// --- S3 archive ---
	if cfg.NeedsArchive() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			KeyPrefix:      cfg.S3.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewEventArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			auditStore,
			auditStore,
			s3blob.ArchiverConfig{
				Events: events.AuditTopics(),
				Prune:  cfg.Archive.Prune,
			},
			logger,
		)
	}

	return deps, cleanup, nil
}
