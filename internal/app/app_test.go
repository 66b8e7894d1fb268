package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/auth"
	"github.com/alanyoungcy/predictledger/internal/config"
	"github.com/alanyoungcy/predictledger/internal/events"
)

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mode = "server"
	cfg.Ledger.Backend = "memory"
	cfg.Server.Port = 0
	return &cfg
}

func TestWire_MemoryBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := memoryConfig()

	deps, cleanup, err := Wire(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	t.Cleanup(cleanup)

	if _, ok := deps.SignalBus.(*events.LocalBus); !ok {
		t.Errorf("SignalBus = %T, want in-process bus without redis", deps.SignalBus)
	}
	if deps.AuditStore != nil || deps.RateLimiter != nil || deps.Archiver != nil {
		t.Error("optional infrastructure wired without configuration")
	}

	admin, err := deps.Core.Admin(context.Background())
	if err != nil || admin != cfg.Ledger.Admin {
		t.Fatalf("Admin = %q, %v; want %q", admin, err, cfg.Ledger.Admin)
	}

	ctx := auth.WithPrincipal(context.Background(), admin)
	bal, err := deps.Core.Fund(ctx, admin, cfg.Ledger.DefaultAsset, "alice", decimal.NewFromInt(50))
	if err != nil || !bal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Fund = %s, %v", bal, err)
	}
}

func TestWire_UnknownIDStrategy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := memoryConfig()
	cfg.Ledger.IDStrategy = "uuid"
	if _, _, err := Wire(context.Background(), cfg, logger); err == nil {
		t.Fatal("expected error for unknown id strategy")
	}
}

func TestApp_ServerModeStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(memoryConfig(), logger)
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want clean shutdown", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
