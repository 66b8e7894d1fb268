package store

import "strings"

// Key layout. Every entity key is (kind, market_id[, user]) joined with ':'.
// Market ids and user identifiers must not contain ':' themselves; callers
// that accept external identifiers reject them before they reach the store.
const (
	AdminKey         = "admin"
	MarketCounterKey = "counter:market"

	marketPrefix   = "market:"
	positionPrefix = "position:"
	indexPrefix    = "positions:"
)

// MarketKey is the key of a market record.
func MarketKey(id string) string { return marketPrefix + id }

// PositionKey is the key of one user's position in one market.
func PositionKey(marketID, user string) string {
	return positionPrefix + marketID + ":" + user
}

// PositionIndexKey is the key of the per-market list of users holding a
// position.
func PositionIndexKey(marketID string) string { return indexPrefix + marketID }

// ValidIdentifier reports whether s can be used as a key component.
func ValidIdentifier(s string) bool {
	return s != "" && !strings.ContainsAny(s, ":\n")
}
