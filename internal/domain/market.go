package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market. Active is the only
// non-terminal state.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusResolved MarketStatus = "resolved"
	MarketStatusCanceled MarketStatus = "canceled"
)

// PublicKey is a 32-byte Ed25519 verification key. It encodes as hex text.
type PublicKey [32]byte

// ParsePublicKey decodes a hex key with or without a 0x prefix.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return k, fmt.Errorf("public key: %w", err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("public key: expected %d bytes, got %d", len(k), len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Market is a binary-outcome prediction market. Result is non-nil exactly
// when Status is MarketStatusResolved.
type Market struct {
	ID              string          `json:"id"`
	Question        string          `json:"question"`
	EndTime         uint64          `json:"end_time"`
	OraclePublicKey PublicKey       `json:"oracle_public_key"`
	Status          MarketStatus    `json:"status"`
	Result          *bool           `json:"result,omitempty"`
	Creator         string          `json:"creator"`
	CreatedAt       uint64          `json:"created_at"`
	ResolvedAt      uint64          `json:"resolved_at,omitempty"`
	CanceledAt      uint64          `json:"canceled_at,omitempty"`
	CollateralAsset string          `json:"collateral_asset"`
	TotalCollateral decimal.Decimal `json:"total_collateral"`
}

// IsActive reports whether the market still accepts deposits and trades.
func (m Market) IsActive() bool { return m.Status == MarketStatusActive }

// Outcome returns the resolved result. ok is false until resolution.
func (m Market) Outcome() (outcome bool, ok bool) {
	if m.Status != MarketStatusResolved || m.Result == nil {
		return false, false
	}
	return *m.Result, true
}
