package domain

import "github.com/shopspring/decimal"

// Position is one user's share holdings and collateral in one market.
// Positions are created lazily with every field zero and are never deleted.
type Position struct {
	MarketID         string          `json:"market_id"`
	User             string          `json:"user"`
	YesShares        decimal.Decimal `json:"yes_shares"`
	NoShares         decimal.Decimal `json:"no_shares"`
	LockedCollateral decimal.Decimal `json:"locked_collateral"`
	// Deposited is the net collateral the user moved into custody for this
	// market (deposits minus withdrawals).
	Deposited decimal.Decimal `json:"deposited"`
	IsSettled bool            `json:"is_settled"`
}

// NewPosition returns the zero position for (marketID, user).
func NewPosition(marketID, user string) Position {
	return Position{
		MarketID:         marketID,
		User:             user,
		YesShares:        decimal.Zero,
		NoShares:         decimal.Zero,
		LockedCollateral: decimal.Zero,
		Deposited:        decimal.Zero,
	}
}

// FreeCollateral is the deposited collateral not currently locked. It is
// never negative.
func (p Position) FreeCollateral() decimal.Decimal {
	free := p.Deposited.Sub(p.LockedCollateral)
	if free.IsNegative() {
		return decimal.Zero
	}
	return free
}
