package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// BasisPoints is the price scale: 0 is a 0% probability, 10_000 is 100%.
const BasisPoints = 10_000

var (
	// MaxAmount is the largest representable amount or share count
	// (2^127 - 1). Results above it are reported as ErrArithmeticOverflow.
	MaxAmount = decimal.NewFromBigInt(
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)

	// MinAmount is the most negative representable intermediate value.
	MinAmount = decimal.NewFromBigInt(
		new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)), 0)

	// MaxDeposit is the per-call deposit ceiling, half of MaxAmount so running
	// totals keep headroom for subsequent additions.
	MaxDeposit = decimal.NewFromBigInt(
		new(big.Int).Rsh(MaxAmount.BigInt(), 1), 0)
)

func inRange(d decimal.Decimal) bool {
	return d.Cmp(MaxAmount) <= 0 && d.Cmp(MinAmount) >= 0
}

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b decimal.Decimal) (decimal.Decimal, error) {
	r := a.Add(b)
	if !inRange(r) {
		return decimal.Zero, ErrArithmeticOverflow
	}
	return r, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow.
func CheckedSub(a, b decimal.Decimal) (decimal.Decimal, error) {
	r := a.Sub(b)
	if !inRange(r) {
		return decimal.Zero, ErrArithmeticOverflow
	}
	return r, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b decimal.Decimal) (decimal.Decimal, error) {
	r := a.Mul(b)
	if !inRange(r) {
		return decimal.Zero, ErrArithmeticOverflow
	}
	return r, nil
}

// FloorDiv divides two non-negative integers, truncating the remainder.
func FloorDiv(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

// IsWhole reports whether d has no fractional part.
func IsWhole(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}
