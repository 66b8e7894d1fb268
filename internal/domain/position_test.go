package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFreeCollateral(t *testing.T) {
	p := NewPosition("1", "alice")
	p.Deposited = decimal.NewFromInt(100)
	p.LockedCollateral = decimal.NewFromInt(60)
	if got := p.FreeCollateral(); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("got %s, want 40", got)
	}

	p.LockedCollateral = decimal.NewFromInt(160)
	if got := p.FreeCollateral(); !got.IsZero() {
		t.Errorf("got %s, want 0", got)
	}
}

func TestMarketOutcome(t *testing.T) {
	m := Market{Status: MarketStatusActive}
	if _, ok := m.Outcome(); ok {
		t.Error("active market must not report an outcome")
	}
	yes := true
	m.Status = MarketStatusResolved
	m.Result = &yes
	got, ok := m.Outcome()
	if !ok || !got {
		t.Errorf("got (%v, %v), want (true, true)", got, ok)
	}
}
