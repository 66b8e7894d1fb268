package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// KV is the host's key-value persistence, scoped to one transaction. Keys are
// flat strings built from (entity-kind, market_id[, user]) tuples.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Has(ctx context.Context, key string) (bool, error)
	// Incr atomically increments the counter at key and returns the new
	// value. A missing counter starts at zero.
	Incr(ctx context.Context, key string) (uint64, error)
	// Touch extends the retention of key. Hosts without expiry may treat it
	// as a no-op.
	Touch(ctx context.Context, key string) error
}

// TxRunner executes fn inside one all-or-nothing host transaction. If fn
// returns an error every write made through kv is discarded. Implementations
// serialize transactions.
type TxRunner interface {
	Atomic(ctx context.Context, fn func(kv KV) error) error
}

// AssetTransfer moves amount of asset between two principals. kv is the
// current host transaction; implementations that keep balances in the host
// must write through it so the transfer commits or rolls back with the call.
type AssetTransfer interface {
	Transfer(ctx context.Context, kv KV, asset, from, to string, amount decimal.Decimal) error
}

// Authorizer proves that the current call was authorized by principal.
type Authorizer interface {
	RequireAuth(ctx context.Context, principal string) error
}

// EventSink receives committed ledger events. Publish is fire-and-forget:
// sinks log their own delivery failures.
type EventSink interface {
	Publish(ctx context.Context, evt Event)
}

// Clock reads the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator allocates a fresh market id. It runs inside the creating
// transaction and sees the market being created (with an empty ID).
type IDGenerator interface {
	NextID(ctx context.Context, kv KV, m Market) (string, error)
}

// SignatureVerifier checks a signature over message with key. It returns
// ErrInvalidSignature for any failure and must not panic.
type SignatureVerifier interface {
	Verify(key PublicKey, message, signature []byte) error
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
