// Package custody keeps token balances in the ledger's own key-value host so
// that collateral transfers commit or roll back with the operation that
// caused them.
package custody

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// BalanceKey is the key of holder's balance of asset.
func BalanceKey(asset, holder string) string {
	return "balance:" + asset + ":" + holder
}

// MarketAccount is the holder of one market's deposited collateral under the
// custodian principal. Identifiers cannot contain ':', so it never names a
// user or another market's account.
func MarketAccount(custodian, marketID string) string {
	return custodian + ":" + marketID
}

// Ledger implements domain.AssetTransfer over KV balance entries.
type Ledger struct{}

// NewLedger returns a Ledger.
func NewLedger() *Ledger { return &Ledger{} }

// Transfer moves amount of asset from one holder to another. A non-positive
// amount, or a source balance below amount, fails with
// domain.ErrTokenTransferFailed and writes nothing.
func (l *Ledger) Transfer(ctx context.Context, kv domain.KV, asset, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("custody: transfer %s: non-positive amount: %w", asset, domain.ErrTokenTransferFailed)
	}
	if from == to {
		return nil
	}

	src, err := readBalance(ctx, kv, asset, from)
	if err != nil {
		return err
	}
	if src.LessThan(amount) {
		return fmt.Errorf("custody: transfer %s from %s: balance %s below %s: %w",
			asset, from, src, amount, domain.ErrTokenTransferFailed)
	}
	dst, err := readBalance(ctx, kv, asset, to)
	if err != nil {
		return err
	}
	newDst, err := domain.CheckedAdd(dst, amount)
	if err != nil {
		return fmt.Errorf("custody: transfer %s to %s: %w", asset, to, domain.ErrTokenTransferFailed)
	}

	if err := setBalance(ctx, kv, asset, from, src.Sub(amount)); err != nil {
		return err
	}
	return setBalance(ctx, kv, asset, to, newDst)
}

// Mint credits holder with amount of asset out of thin air. It is how the
// operator funds accounts on hosts that have no external token.
func (l *Ledger) Mint(ctx context.Context, kv domain.KV, asset, holder string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() || !domain.IsWhole(amount) {
		return decimal.Zero, domain.ErrInvalidQuantity
	}
	cur, err := readBalance(ctx, kv, asset, holder)
	if err != nil {
		return decimal.Zero, err
	}
	next, err := domain.CheckedAdd(cur, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := setBalance(ctx, kv, asset, holder, next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// Balance reads holder's balance of asset. Missing entries are zero.
func (l *Ledger) Balance(ctx context.Context, kv domain.KV, asset, holder string) (decimal.Decimal, error) {
	return readBalance(ctx, kv, asset, holder)
}

func readBalance(ctx context.Context, kv domain.KV, asset, holder string) (decimal.Decimal, error) {
	raw, ok, err := kv.Get(ctx, BalanceKey(asset, holder))
	if err != nil {
		return decimal.Zero, fmt.Errorf("custody: get balance: %w", err)
	}
	if !ok {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("custody: decode balance %s/%s: %w", asset, holder, err)
	}
	return d, nil
}

func setBalance(ctx context.Context, kv domain.KV, asset, holder string, v decimal.Decimal) error {
	if err := kv.Set(ctx, BalanceKey(asset, holder), []byte(v.String())); err != nil {
		return fmt.Errorf("custody: set balance: %w", err)
	}
	return nil
}

var _ domain.AssetTransfer = (*Ledger)(nil)
