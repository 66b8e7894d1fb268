package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store/memory"
)

func balanceOf(t *testing.T, s *memory.Store, asset, holder string) decimal.Decimal {
	t.Helper()
	var got decimal.Decimal
	err := s.Atomic(context.Background(), func(kv domain.KV) error {
		var err error
		got, err = NewLedger().Balance(context.Background(), kv, asset, holder)
		return err
	})
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return got
}

func TestTransfer(t *testing.T) {
	s := memory.New()
	l := NewLedger()
	ctx := context.Background()

	err := s.Atomic(ctx, func(kv domain.KV) error {
		if _, err := l.Mint(ctx, kv, "USDC", "alice", decimal.NewFromInt(100)); err != nil {
			return err
		}
		return l.Transfer(ctx, kv, "USDC", "alice", "custody", decimal.NewFromInt(60))
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	if got := balanceOf(t, s, "USDC", "alice"); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("alice: got %s, want 40", got)
	}
	if got := balanceOf(t, s, "USDC", "custody"); !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("custody: got %s, want 60", got)
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	s := memory.New()
	l := NewLedger()
	ctx := context.Background()

	err := s.Atomic(ctx, func(kv domain.KV) error {
		if _, err := l.Mint(ctx, kv, "USDC", "alice", decimal.NewFromInt(10)); err != nil {
			return err
		}
		return l.Transfer(ctx, kv, "USDC", "alice", "custody", decimal.NewFromInt(11))
	})
	if !errors.Is(err, domain.ErrTokenTransferFailed) {
		t.Fatalf("got %v, want ErrTokenTransferFailed", err)
	}
	if got := balanceOf(t, s, "USDC", "alice"); !got.IsZero() {
		t.Errorf("failed call must leave no trace, alice has %s", got)
	}
}

func TestTransfer_NonPositive(t *testing.T) {
	s := memory.New()
	l := NewLedger()
	ctx := context.Background()

	err := s.Atomic(ctx, func(kv domain.KV) error {
		return l.Transfer(ctx, kv, "USDC", "alice", "bob", decimal.Zero)
	})
	if !errors.Is(err, domain.ErrTokenTransferFailed) {
		t.Errorf("got %v, want ErrTokenTransferFailed", err)
	}
}

func TestMint_Rejects(t *testing.T) {
	s := memory.New()
	l := NewLedger()
	ctx := context.Background()

	_ = s.Atomic(ctx, func(kv domain.KV) error {
		if _, err := l.Mint(ctx, kv, "USDC", "alice", decimal.NewFromInt(-5)); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("negative mint: got %v", err)
		}
		if _, err := l.Mint(ctx, kv, "USDC", "alice", decimal.RequireFromString("0.5")); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("fractional mint: got %v", err)
		}
		return nil
	})
}

func TestMarketAccount_Distinct(t *testing.T) {
	a := MarketAccount("custody", "1")
	b := MarketAccount("custody", "2")
	if a == b {
		t.Fatalf("markets share account %q", a)
	}
	for _, acct := range []string{a, b} {
		if acct == "custody" || acct == "1" || acct == "2" {
			t.Errorf("market account %q collides with a plain principal", acct)
		}
	}
}
