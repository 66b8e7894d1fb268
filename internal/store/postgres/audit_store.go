package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

const auditColumns = `id, event, detail, created_at`

// AuditStore implements domain.AuditStore on the audit_log table. Committed
// ledger events and archive runs are both recorded here; entries whose
// detail names a market_id are indexed by market.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: encode detail: %w", event, err)
	}
	var marketID *string
	if id, ok := detail["market_id"].(string); ok && id != "" {
		marketID = &id
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail, market_id) VALUES (@event, @detail, @market)`,
		pgx.NamedArgs{"event": event, "detail": raw, "market": marketID},
	)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first inside the optional [Since, Until)
// window.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var where []string
	args := pgx.NamedArgs{}
	if opts.Since != nil {
		where = append(where, "created_at >= @since")
		args["since"] = *opts.Since
	}
	if opts.Until != nil {
		where = append(where, "created_at < @until")
		args["until"] = *opts.Until
	}

	var q strings.Builder
	q.WriteString("SELECT " + auditColumns + " FROM audit_log")
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY created_at DESC, id DESC")
	if opts.Limit > 0 {
		q.WriteString(" LIMIT @limit")
		args["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		q.WriteString(" OFFSET @offset")
		args["offset"] = opts.Offset
	}
	return s.query(ctx, "list", q.String(), args)
}

// MarketHistory returns up to limit entries recorded for marketID, oldest
// first.
func (s *AuditStore) MarketHistory(ctx context.Context, marketID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, "market history",
		`SELECT `+auditColumns+` FROM audit_log WHERE market_id = @market ORDER BY id ASC LIMIT @limit`,
		pgx.NamedArgs{"market": marketID, "limit": limit},
	)
}

// ListBefore returns entries for events created strictly before the
// cutoff, oldest first.
func (s *AuditStore) ListBefore(ctx context.Context, events []string, before time.Time) ([]domain.AuditEntry, error) {
	return s.query(ctx, "list before",
		`SELECT `+auditColumns+` FROM audit_log
		 WHERE event = ANY(@events) AND created_at < @before
		 ORDER BY created_at ASC, id ASC`,
		pgx.NamedArgs{"events": events, "before": before},
	)
}

// DeleteBefore removes entries for events created strictly before the
// cutoff.
func (s *AuditStore) DeleteBefore(ctx context.Context, events []string, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM audit_log WHERE event = ANY(@events) AND created_at < @before`,
		pgx.NamedArgs{"events": events, "before": before},
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: audit prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *AuditStore) query(ctx context.Context, op, sql string, args pgx.NamedArgs) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit %s: %w", op, err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit %s: %w", op, err)
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e   domain.AuditEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return e, fmt.Errorf("decode detail of entry %d: %w", e.ID, err)
		}
	}
	return e, nil
}
