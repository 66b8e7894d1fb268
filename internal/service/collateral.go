package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/custody"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
	"github.com/alanyoungcy/predictledger/internal/validation"
)

// CollateralEngine moves collateral between users and custody. Collateral is
// tracked and held per market; a user's deposit in one market never backs
// another.
type CollateralEngine struct {
	markets   *MarketRegistry
	positions *PositionLedger
	transfer  domain.AssetTransfer
	custody   string
	logger    *slog.Logger
}

// NewCollateralEngine creates a CollateralEngine. custody is the custodian
// principal; each market's collateral sits in custody.MarketAccount.
func NewCollateralEngine(
	markets *MarketRegistry,
	positions *PositionLedger,
	transfer domain.AssetTransfer,
	custody string,
	logger *slog.Logger,
) *CollateralEngine {
	return &CollateralEngine{
		markets:   markets,
		positions: positions,
		transfer:  transfer,
		custody:   custody,
		logger:    logger.With(slog.String("component", "collateral_engine")),
	}
}

// Deposit moves amount from depositor into custody and credits the
// depositor's position. It returns the position's new locked collateral.
// Ledger writes happen only after the transfer succeeds.
func (e *CollateralEngine) Deposit(ctx context.Context, tx *store.Tx, marketID, depositor string, amount decimal.Decimal, now uint64) (decimal.Decimal, error) {
	if err := validation.CollateralAmount(amount); err != nil {
		return decimal.Zero, err
	}
	m, err := e.markets.RequireActive(ctx, tx, marketID)
	if err != nil {
		return decimal.Zero, err
	}

	if err := e.move(ctx, tx, m.CollateralAsset, depositor, custody.MarketAccount(e.custody, marketID), amount); err != nil {
		return decimal.Zero, err
	}

	p, _, err := e.positions.GetOrDefault(ctx, tx, marketID, depositor)
	if err != nil {
		return decimal.Zero, err
	}
	if p.LockedCollateral, err = domain.CheckedAdd(p.LockedCollateral, amount); err != nil {
		return decimal.Zero, err
	}
	if p.Deposited, err = domain.CheckedAdd(p.Deposited, amount); err != nil {
		return decimal.Zero, err
	}
	if err := e.positions.Put(ctx, tx, p); err != nil {
		return decimal.Zero, err
	}
	if _, err := e.markets.AddCollateral(ctx, tx, marketID, amount); err != nil {
		return decimal.Zero, err
	}

	tx.Emit(domain.TopicCollateralDeposited, marketID, now, map[string]any{
		"user":      depositor,
		"market_id": marketID,
		"amount":    amount.String(),
		"new_total": p.LockedCollateral.String(),
	})
	e.logger.InfoContext(ctx, "collateral_engine: deposit",
		slog.String("market_id", marketID),
		slog.String("user", depositor),
		slog.String("amount", amount.String()),
	)
	return p.LockedCollateral, nil
}

// Withdraw returns collateral from custody to user and reports the user's
// remaining deposit in the market. An active market releases only collateral
// not locked by the position; a canceled market refunds the full deposit; a
// resolved market pays out through settlement instead.
func (e *CollateralEngine) Withdraw(ctx context.Context, tx *store.Tx, marketID, user string, amount decimal.Decimal, now uint64) (decimal.Decimal, error) {
	if err := validation.CollateralAmount(amount); err != nil {
		return decimal.Zero, err
	}
	m, err := e.markets.Get(ctx, tx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	p, err := e.positions.Get(ctx, tx, marketID, user)
	if err != nil {
		return decimal.Zero, err
	}

	switch m.Status {
	case domain.MarketStatusActive:
		if amount.GreaterThan(p.FreeCollateral()) {
			return decimal.Zero, domain.ErrInsufficientCollateral
		}
	case domain.MarketStatusCanceled:
		if amount.GreaterThan(p.Deposited) {
			return decimal.Zero, domain.ErrInsufficientCollateral
		}
		p.LockedCollateral = decimal.Max(p.LockedCollateral.Sub(amount), decimal.Zero)
	default:
		return decimal.Zero, domain.ErrMarketNotActive
	}
	if p.Deposited, err = domain.CheckedSub(p.Deposited, amount); err != nil {
		return decimal.Zero, err
	}

	if err := e.move(ctx, tx, m.CollateralAsset, custody.MarketAccount(e.custody, marketID), user, amount); err != nil {
		return decimal.Zero, err
	}
	if err := e.positions.Put(ctx, tx, p); err != nil {
		return decimal.Zero, err
	}
	if _, err := e.markets.ReleaseCollateral(ctx, tx, marketID, amount); err != nil {
		return decimal.Zero, err
	}

	tx.Emit(domain.TopicCollateralWithdrawn, marketID, now, map[string]any{
		"user":      user,
		"market_id": marketID,
		"amount":    amount.String(),
		"new_total": p.Deposited.String(),
	})
	e.logger.InfoContext(ctx, "collateral_engine: withdrawal",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.String("amount", amount.String()),
		slog.String("status", string(m.Status)),
	)
	return p.Deposited, nil
}

// move calls the transfer port. Any failure is reported as
// ErrTokenTransferFailed; the cause stays in the chain.
func (e *CollateralEngine) move(ctx context.Context, tx *store.Tx, asset, from, to string, amount decimal.Decimal) error {
	if e.transfer == nil {
		return nil
	}
	if err := e.transfer.Transfer(ctx, tx.KV(), asset, from, to, amount); err != nil {
		return wrapTransfer(err)
	}
	return nil
}

func wrapTransfer(err error) error {
	if errors.Is(err, domain.ErrTokenTransferFailed) {
		return err
	}
	return fmt.Errorf("service: transfer: %w: %w", domain.ErrTokenTransferFailed, err)
}
