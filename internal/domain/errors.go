package domain

import "errors"

// Code is the stable numeric identifier of a ledger failure. Codes are grouped
// into reserved ranges:
//
//	market        1-9
//	position     10-19
//	oracle       20-29
//	validation   30-39
//	authorization 40-49
//	token        50-59
//	arithmetic   60-69
type Code uint32

// Error is a categorized ledger failure. Every public ledger operation fails
// with one of the sentinels below (possibly wrapped), so callers can match
// with errors.Is or switch on Code.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Market errors.
var (
	ErrMarketNotFound        = newError(1, "market not found")
	ErrMarketAlreadyResolved = newError(2, "market already resolved")
	ErrMarketNotResolved     = newError(3, "market not resolved")
	ErrMarketExpired         = newError(4, "market expired")
	ErrMarketNotActive       = newError(5, "market not active")
)

// Position errors.
var (
	ErrInsufficientCollateral = newError(10, "insufficient collateral")
	ErrPositionAlreadySettled = newError(11, "position already settled")
	ErrNoPositionFound        = newError(12, "no position found")
	ErrInvalidShareAmount     = newError(13, "invalid share amount")
)

// Oracle errors.
var (
	ErrInvalidSignature   = newError(20, "invalid oracle signature")
	ErrUnauthorizedOracle = newError(21, "unauthorized oracle")
	ErrInvalidOutcome     = newError(22, "invalid outcome")
)

// Validation errors.
var (
	ErrInvalidPrice     = newError(30, "invalid price")
	ErrInvalidQuantity  = newError(31, "invalid quantity")
	ErrInvalidTimestamp = newError(32, "invalid timestamp")
	ErrInvalidQuestion  = newError(33, "invalid question")
)

// Authorization errors.
var (
	ErrUnauthorized = newError(40, "unauthorized")
	ErrNotAdmin     = newError(41, "caller is not admin")
)

// Token and arithmetic errors.
var (
	ErrTokenTransferFailed = newError(50, "token transfer failed")
	ErrArithmeticOverflow  = newError(60, "arithmetic overflow")
)

// Infrastructure errors returned by storage adapters. They never cross the
// public ledger boundary unwrapped.
var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)

// CodeOf extracts the ledger error code from err. The boolean is false for
// errors outside the ledger taxonomy (I/O, driver, context errors).
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Category names the reserved range a code belongs to.
func (c Code) Category() string {
	switch {
	case c >= 1 && c <= 9:
		return "market"
	case c >= 10 && c <= 19:
		return "position"
	case c >= 20 && c <= 29:
		return "oracle"
	case c >= 30 && c <= 39:
		return "validation"
	case c >= 40 && c <= 49:
		return "authorization"
	case c >= 50 && c <= 59:
		return "token"
	case c >= 60 && c <= 69:
		return "arithmetic"
	default:
		return "unknown"
	}
}
