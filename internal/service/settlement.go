package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/custody"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
)

// Payout is the winning side's share count. Losing shares pay nothing.
func Payout(p domain.Position, outcome bool) decimal.Decimal {
	if outcome {
		return p.YesShares
	}
	return p.NoShares
}

// MarketStats aggregates shares across every position in a market.
type MarketStats struct {
	MarketID        string          `json:"market_id"`
	Positions       int             `json:"positions"`
	Settled         int             `json:"settled"`
	TotalYesShares  decimal.Decimal `json:"total_yes_shares"`
	TotalNoShares   decimal.Decimal `json:"total_no_shares"`
	TotalCollateral decimal.Decimal `json:"total_collateral"`
	TotalLocked     decimal.Decimal `json:"total_locked"`
	Resolved        bool            `json:"resolved"`
	// Set only when Resolved.
	WinningShares decimal.Decimal `json:"winning_shares"`
	LosingShares  decimal.Decimal `json:"losing_shares"`
	TotalPayout   decimal.Decimal `json:"total_payout"`
}

// SettlementSplit divides share totals into (winning, losing, payout) for
// outcome.
func SettlementSplit(totalYes, totalNo decimal.Decimal, outcome bool) (winning, losing, payout decimal.Decimal) {
	if outcome {
		return totalYes, totalNo, totalYes
	}
	return totalNo, totalYes, totalNo
}

// SettlementEngine pays out resolved positions exactly once.
type SettlementEngine struct {
	markets   *MarketRegistry
	positions *PositionLedger
	transfer  domain.AssetTransfer
	custody   string
	logger    *slog.Logger
}

// NewSettlementEngine creates a SettlementEngine.
func NewSettlementEngine(
	markets *MarketRegistry,
	positions *PositionLedger,
	transfer domain.AssetTransfer,
	custody string,
	logger *slog.Logger,
) *SettlementEngine {
	return &SettlementEngine{
		markets:   markets,
		positions: positions,
		transfer:  transfer,
		custody:   custody,
		logger:    logger.With(slog.String("component", "settlement_engine")),
	}
}

// Settle latches the position as settled and pays it out of the market's
// collateral in the same transaction. A payout larger than the market's
// remaining collateral fails with ErrInsufficientCollateral.
func (s *SettlementEngine) Settle(ctx context.Context, tx *store.Tx, marketID, user string, now uint64) (decimal.Decimal, error) {
	m, err := s.markets.Get(ctx, tx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	outcome, ok := m.Outcome()
	if !ok {
		return decimal.Zero, domain.ErrMarketNotResolved
	}
	p, err := s.positions.Get(ctx, tx, marketID, user)
	if err != nil {
		return decimal.Zero, err
	}
	if !CanSettle(p, m) {
		return decimal.Zero, domain.ErrPositionAlreadySettled
	}

	payout := Payout(p, outcome)
	p.IsSettled = true
	p.LockedCollateral = decimal.Zero
	if err := s.positions.Put(ctx, tx, p); err != nil {
		return decimal.Zero, err
	}
	if payout.IsPositive() {
		if _, err := s.markets.ReleaseCollateral(ctx, tx, marketID, payout); err != nil {
			return decimal.Zero, err
		}
		if s.transfer != nil {
			from := custody.MarketAccount(s.custody, marketID)
			if err := s.transfer.Transfer(ctx, tx.KV(), m.CollateralAsset, from, user, payout); err != nil {
				return decimal.Zero, wrapTransfer(err)
			}
		}
	}

	tx.Emit(domain.TopicPositionSettled, marketID, now, map[string]any{
		"user":      user,
		"market_id": marketID,
		"outcome":   outcome,
		"payout":    payout.String(),
	})
	s.logger.InfoContext(ctx, "settlement_engine: position settled",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.String("payout", payout.String()),
	)
	return payout, nil
}

// PotentialPayout previews the payout without writing. ok is false while the
// market is unresolved. A user without a position previews zero.
func (s *SettlementEngine) PotentialPayout(ctx context.Context, tx *store.Tx, marketID, user string) (decimal.Decimal, bool, error) {
	m, err := s.markets.Get(ctx, tx, marketID)
	if err != nil {
		return decimal.Zero, false, err
	}
	outcome, ok := m.Outcome()
	if !ok {
		return decimal.Zero, false, nil
	}
	p, _, err := s.positions.GetOrDefault(ctx, tx, marketID, user)
	if err != nil {
		return decimal.Zero, false, err
	}
	return Payout(p, outcome), true, nil
}

// Stats totals shares over the market's position index.
func (s *SettlementEngine) Stats(ctx context.Context, tx *store.Tx, marketID string) (MarketStats, error) {
	m, err := s.markets.Get(ctx, tx, marketID)
	if err != nil {
		return MarketStats{}, err
	}
	users, err := tx.PositionUsers(ctx, marketID)
	if err != nil {
		return MarketStats{}, err
	}

	st := MarketStats{
		MarketID:        marketID,
		TotalYesShares:  decimal.Zero,
		TotalNoShares:   decimal.Zero,
		TotalCollateral: m.TotalCollateral,
		TotalLocked:     decimal.Zero,
		WinningShares:   decimal.Zero,
		LosingShares:    decimal.Zero,
		TotalPayout:     decimal.Zero,
	}
	for _, u := range users {
		p, err := s.positions.Get(ctx, tx, marketID, u)
		if err != nil {
			return MarketStats{}, err
		}
		st.Positions++
		if p.IsSettled {
			st.Settled++
		}
		if st.TotalYesShares, err = domain.CheckedAdd(st.TotalYesShares, p.YesShares); err != nil {
			return MarketStats{}, err
		}
		if st.TotalNoShares, err = domain.CheckedAdd(st.TotalNoShares, p.NoShares); err != nil {
			return MarketStats{}, err
		}
		if st.TotalLocked, err = domain.CheckedAdd(st.TotalLocked, p.LockedCollateral); err != nil {
			return MarketStats{}, err
		}
	}
	if outcome, ok := m.Outcome(); ok {
		st.Resolved = true
		st.WinningShares, st.LosingShares, st.TotalPayout = SettlementSplit(st.TotalYesShares, st.TotalNoShares, outcome)
	}
	return st, nil
}
