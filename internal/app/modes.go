package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictledger/internal/server"
	"github.com/alanyoungcy/predictledger/internal/server/handler"
	"github.com/alanyoungcy/predictledger/internal/server/ws"
)

// ServerMode serves the HTTP API and the live event stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startDispatcher(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode only moves old ledger events to object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiver(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs the API plus the archiver when it is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startDispatcher(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	if deps.Archiver != nil {
		if err := a.startArchiver(ctx, g, deps); err != nil {
			return err
		}
	}
	return g.Wait()
}

func (a *App) startDispatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Dispatcher.Run(ctx)
	})
}

// startHTTPServer adds the API server and WebSocket hub to g. The server
// shuts down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Channels:       []string{a.cfg.Events.Channel},
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		Mode:           a.cfg.Mode,
		StartedAt:      a.startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status: &handler.StatusHandler{
			Mode:      a.cfg.Mode,
			Backend:   deps.Backend,
			StartedAt: a.startedAt,
			Dropped:   deps.Dispatcher.Dropped,
		},
		Markets:   handler.NewMarketHandler(deps.Core, a.logger),
		Positions: handler.NewPositionHandler(deps.Core, a.logger),
		Accounts:  handler.NewAccountHandler(deps.Core, a.cfg.Ledger.DefaultAsset, a.logger),
		Events:    handler.NewEventsHandler(deps.SignalBus, a.cfg.Events.Stream, a.logger),
	}
	if deps.History != nil {
		handlers.History = handler.NewHistoryHandler(deps.Core, deps.History, a.logger)
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Tokens:      a.cfg.Server.APITokens,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver archives once at start and then every archive interval.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archiver not configured (needs postgres and s3)")
	}
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	runOnce := func() {
		before := time.Now().UTC().Add(-retention)
		n, err := deps.Archiver.ArchiveEvents(ctx, before)
		if err != nil {
			a.logger.ErrorContext(ctx, "app: archive run failed", slog.String("error", err.Error()))
			return
		}
		a.logger.InfoContext(ctx, "app: archive run complete",
			slog.Int64("events", n),
			slog.Time("before", before),
		)
	}

	g.Go(func() error {
		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})
	a.logger.InfoContext(ctx, "app: archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	return nil
}
