// Package validation holds the pure input predicates shared by the ledger
// components. Nothing here reads or writes state.
package validation

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

const (
	// MaxQuestionLen is the exclusive upper bound on question length, in
	// characters.
	MaxQuestionLen = 500

	// MaxMarketDuration is how far past creation a market may end (365 days).
	MaxMarketDuration uint64 = 31_536_000
)

// MarketCreation checks the question text and the end time of a new market.
func MarketCreation(question string, endTime, now uint64) error {
	if err := Question(question); err != nil {
		return err
	}
	return EndTime(endTime, now)
}

// Question requires 1-499 characters.
func Question(question string) error {
	n := utf8.RuneCountInString(question)
	if n == 0 || n >= MaxQuestionLen {
		return domain.ErrInvalidQuestion
	}
	return nil
}

// EndTime requires now < endTime <= now + one year.
func EndTime(endTime, now uint64) error {
	if endTime <= now {
		return domain.ErrInvalidTimestamp
	}
	if endTime-now > MaxMarketDuration {
		return domain.ErrInvalidTimestamp
	}
	return nil
}

// CollateralAmount requires a whole amount in (0, domain.MaxDeposit].
func CollateralAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !domain.IsWhole(amount) {
		return domain.ErrInvalidQuantity
	}
	if amount.Cmp(domain.MaxDeposit) > 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

// Price requires a whole number of basis points in [0, 10_000].
func Price(bps int64) error {
	if bps < 0 || bps > domain.BasisPoints {
		return domain.ErrInvalidPrice
	}
	return nil
}

// ShareDelta requires a whole-number delta.
func ShareDelta(delta decimal.Decimal) error {
	if !domain.IsWhole(delta) {
		return domain.ErrInvalidShareAmount
	}
	return nil
}

// ParseOutcome maps a wire value to a boolean outcome.
func ParseOutcome(v string) (bool, error) {
	switch v {
	case "yes", "YES", "Yes", "true", "1":
		return true, nil
	case "no", "NO", "No", "false", "0":
		return false, nil
	default:
		return false, domain.ErrInvalidOutcome
	}
}

// Principal requires a non-empty identity.
func Principal(p string) error {
	if p == "" {
		return domain.ErrUnauthorized
	}
	return nil
}
