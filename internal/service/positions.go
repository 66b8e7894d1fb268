package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
	"github.com/alanyoungcy/predictledger/internal/validation"
)

var bps = decimal.NewFromInt(domain.BasisPoints)

// LockedCollateral is the collateral a position must hold at priceBps: zero
// when hedged, otherwise the net side's exposure at that side's price,
// rounded down.
func LockedCollateral(yes, no decimal.Decimal, priceBps int64) (decimal.Decimal, error) {
	if err := validation.Price(priceBps); err != nil {
		return decimal.Zero, err
	}
	net := NetPosition(yes, no)
	var price decimal.Decimal
	switch net.Sign() {
	case 0:
		return decimal.Zero, nil
	case 1:
		price = decimal.NewFromInt(priceBps)
	default:
		net = net.Neg()
		price = decimal.NewFromInt(domain.BasisPoints - priceBps)
	}
	product, err := domain.CheckedMul(net, price)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.FloorDiv(product, bps), nil
}

// NetPosition is yes - no. Positive means net long YES.
func NetPosition(yes, no decimal.Decimal) decimal.Decimal {
	return yes.Sub(no)
}

// CanSettle reports whether p can be settled against m.
func CanSettle(p domain.Position, m domain.Market) bool {
	return m.Status == domain.MarketStatusResolved && !p.IsSettled
}

// PositionLedger owns position records. All share changes go through
// UpdatePosition.
type PositionLedger struct {
	markets *MarketRegistry
	logger  *slog.Logger
}

// NewPositionLedger creates a PositionLedger.
func NewPositionLedger(markets *MarketRegistry, logger *slog.Logger) *PositionLedger {
	return &PositionLedger{
		markets: markets,
		logger:  logger.With(slog.String("component", "position_ledger")),
	}
}

// GetOrDefault loads (marketID, user) or returns the zero position. exists
// reports whether a record was stored.
func (l *PositionLedger) GetOrDefault(ctx context.Context, tx *store.Tx, marketID, user string) (p domain.Position, exists bool, err error) {
	p, exists, err = tx.Position(ctx, marketID, user)
	if err != nil {
		return p, false, err
	}
	if !exists {
		return domain.NewPosition(marketID, user), false, nil
	}
	return p, true, nil
}

// Get loads a stored position or returns ErrNoPositionFound.
func (l *PositionLedger) Get(ctx context.Context, tx *store.Tx, marketID, user string) (domain.Position, error) {
	p, ok, err := tx.Position(ctx, marketID, user)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, domain.ErrNoPositionFound
	}
	return p, nil
}

// Put persists p.
func (l *PositionLedger) Put(ctx context.Context, tx *store.Tx, p domain.Position) error {
	return tx.PutPosition(ctx, p)
}

// UpdatePosition applies share deltas at priceBps and recomputes the locked
// collateral. The market must exist and be active, and the new locked amount
// must be covered by the user's deposit in the market.
func (l *PositionLedger) UpdatePosition(ctx context.Context, tx *store.Tx, marketID, user string, yesDelta, noDelta decimal.Decimal, priceBps int64, now uint64) (domain.Position, error) {
	if err := validation.Price(priceBps); err != nil {
		return domain.Position{}, err
	}
	if err := validation.ShareDelta(yesDelta); err != nil {
		return domain.Position{}, err
	}
	if err := validation.ShareDelta(noDelta); err != nil {
		return domain.Position{}, err
	}
	if _, err := l.markets.RequireActive(ctx, tx, marketID); err != nil {
		return domain.Position{}, err
	}

	p, _, err := l.GetOrDefault(ctx, tx, marketID, user)
	if err != nil {
		return p, err
	}
	if p.IsSettled {
		return p, domain.ErrPositionAlreadySettled
	}

	newYes, err := domain.CheckedAdd(p.YesShares, yesDelta)
	if err != nil {
		return p, err
	}
	newNo, err := domain.CheckedAdd(p.NoShares, noDelta)
	if err != nil {
		return p, err
	}
	if newYes.IsNegative() || newNo.IsNegative() {
		return p, domain.ErrInvalidShareAmount
	}
	locked, err := LockedCollateral(newYes, newNo, priceBps)
	if err != nil {
		return p, err
	}
	if locked.GreaterThan(p.Deposited) {
		return p, domain.ErrInsufficientCollateral
	}

	p.YesShares = newYes
	p.NoShares = newNo
	p.LockedCollateral = locked
	if err := l.Put(ctx, tx, p); err != nil {
		return p, err
	}
	tx.Emit(domain.TopicPositionUpdated, marketID, now, map[string]any{
		"user":              user,
		"market_id":         marketID,
		"yes_shares":        p.YesShares.String(),
		"no_shares":         p.NoShares.String(),
		"locked_collateral": p.LockedCollateral.String(),
		"price_bps":         priceBps,
	})

	l.logger.DebugContext(ctx, "position_ledger: position updated",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.String("locked", p.LockedCollateral.String()),
	)
	return p, nil
}

// UnlockAll zeroes the locked collateral of every position in marketID. A
// resolved market has no open exposure left to back.
func (l *PositionLedger) UnlockAll(ctx context.Context, tx *store.Tx, marketID string) error {
	users, err := tx.PositionUsers(ctx, marketID)
	if err != nil {
		return err
	}
	for _, u := range users {
		p, err := l.Get(ctx, tx, marketID, u)
		if err != nil {
			return err
		}
		if p.LockedCollateral.IsZero() {
			continue
		}
		p.LockedCollateral = decimal.Zero
		if err := l.Put(ctx, tx, p); err != nil {
			return err
		}
	}
	return nil
}
