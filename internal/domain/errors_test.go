package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("service: deposit: %w", ErrInsufficientCollateral)
	code, ok := CodeOf(wrapped)
	if !ok {
		t.Fatal("expected a ledger code")
	}
	if code != 10 {
		t.Errorf("got %d, want 10", code)
	}
	if !errors.Is(wrapped, ErrInsufficientCollateral) {
		t.Error("errors.Is should see through the wrap")
	}

	if _, ok := CodeOf(errors.New("dial tcp: refused")); ok {
		t.Error("infrastructure errors must not carry a code")
	}
}

func TestCodeCategory(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{ErrMarketNotFound, "market"},
		{ErrMarketNotActive, "market"},
		{ErrNoPositionFound, "position"},
		{ErrInvalidSignature, "oracle"},
		{ErrInvalidQuestion, "validation"},
		{ErrNotAdmin, "authorization"},
		{ErrTokenTransferFailed, "token"},
		{ErrArithmeticOverflow, "arithmetic"},
	}
	for _, tc := range cases {
		if got := tc.err.Code.Category(); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.err, got, tc.want)
		}
	}
	if got := Code(99).Category(); got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}

func TestCodesAreStable(t *testing.T) {
	want := map[*Error]Code{
		ErrMarketNotFound:         1,
		ErrMarketAlreadyResolved:  2,
		ErrMarketNotResolved:      3,
		ErrMarketExpired:          4,
		ErrMarketNotActive:        5,
		ErrInsufficientCollateral: 10,
		ErrPositionAlreadySettled: 11,
		ErrNoPositionFound:        12,
		ErrInvalidShareAmount:     13,
		ErrInvalidSignature:       20,
		ErrUnauthorizedOracle:     21,
		ErrInvalidOutcome:         22,
		ErrInvalidPrice:           30,
		ErrInvalidQuantity:        31,
		ErrInvalidTimestamp:       32,
		ErrInvalidQuestion:        33,
		ErrUnauthorized:           40,
		ErrNotAdmin:               41,
		ErrTokenTransferFailed:    50,
		ErrArithmeticOverflow:     60,
	}
	for e, code := range want {
		if e.Code != code {
			t.Errorf("%s: got code %d, want %d", e, e.Code, code)
		}
	}
}
