package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
	"github.com/alanyoungcy/predictledger/internal/validation"
)

// CreateMarketParams describes a new market.
type CreateMarketParams struct {
	Creator         string
	Question        string
	EndTime         uint64
	OracleKey       domain.PublicKey
	CollateralAsset string
}

// MarketRegistry owns market records and the lifecycle state machine. No
// other component writes a market's status or collateral total.
type MarketRegistry struct {
	ids    domain.IDGenerator
	logger *slog.Logger
}

// NewMarketRegistry creates a MarketRegistry.
func NewMarketRegistry(ids domain.IDGenerator, logger *slog.Logger) *MarketRegistry {
	return &MarketRegistry{
		ids:    ids,
		logger: logger.With(slog.String("component", "market_registry")),
	}
}

// Initialize records admin as the administrator. Re-initializing with the
// same admin is a no-op; replacing an existing admin fails with ErrNotAdmin.
func (r *MarketRegistry) Initialize(ctx context.Context, tx *store.Tx, admin string) error {
	if err := validation.Principal(admin); err != nil {
		return err
	}
	cur, ok, err := tx.Admin(ctx)
	if err != nil {
		return err
	}
	if ok {
		if cur == admin {
			return nil
		}
		return domain.ErrNotAdmin
	}
	return tx.SetAdmin(ctx, admin)
}

// Admin returns the administrator or ErrNotAdmin before initialization.
func (r *MarketRegistry) Admin(ctx context.Context, tx *store.Tx) (string, error) {
	admin, ok, err := tx.Admin(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrNotAdmin
	}
	return admin, nil
}

// Create validates p and persists a new active market.
func (r *MarketRegistry) Create(ctx context.Context, tx *store.Tx, p CreateMarketParams, now uint64) (domain.Market, error) {
	admin, ok, err := tx.Admin(ctx)
	if err != nil {
		return domain.Market{}, err
	}
	if !ok || admin != p.Creator {
		return domain.Market{}, domain.ErrUnauthorized
	}
	if err := validation.MarketCreation(p.Question, p.EndTime, now); err != nil {
		return domain.Market{}, err
	}

	m := domain.Market{
		Question:        p.Question,
		EndTime:         p.EndTime,
		OraclePublicKey: p.OracleKey,
		Status:          domain.MarketStatusActive,
		Creator:         p.Creator,
		CreatedAt:       now,
		CollateralAsset: p.CollateralAsset,
		TotalCollateral: decimal.Zero,
	}
	id, err := r.ids.NextID(ctx, tx.KV(), m)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: allocate market id: %w", err)
	}
	exists, err := tx.HasMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	if exists {
		// Only content-derived ids can collide: same creator, question, and times.
		return domain.Market{}, fmt.Errorf("service: market %s already exists: %w", id, domain.ErrInvalidQuestion)
	}
	m.ID = id

	if err := tx.PutMarket(ctx, m); err != nil {
		return domain.Market{}, err
	}
	tx.Emit(domain.TopicMarketCreated, m.ID, now, map[string]any{
		"market_id":        m.ID,
		"question":         m.Question,
		"end_time":         m.EndTime,
		"creator":          m.Creator,
		"collateral_asset": m.CollateralAsset,
		"oracle_key":       m.OraclePublicKey.String(),
	})

	r.logger.InfoContext(ctx, "market_registry: market created",
		slog.String("market_id", m.ID),
		slog.Uint64("end_time", m.EndTime),
	)
	return m, nil
}

// Get loads a market or returns ErrMarketNotFound.
func (r *MarketRegistry) Get(ctx context.Context, tx *store.Tx, id string) (domain.Market, error) {
	return tx.Market(ctx, id)
}

// RequireActive loads a market and fails with ErrMarketNotActive unless it
// is active.
func (r *MarketRegistry) RequireActive(ctx context.Context, tx *store.Tx, id string) (domain.Market, error) {
	m, err := tx.Market(ctx, id)
	if err != nil {
		return m, err
	}
	if !m.IsActive() {
		return m, domain.ErrMarketNotActive
	}
	return m, nil
}

// TransitionToResolved moves an active market to resolved with outcome.
func (r *MarketRegistry) TransitionToResolved(ctx context.Context, tx *store.Tx, id string, outcome bool, resolvedAt uint64) (domain.Market, error) {
	m, err := tx.Market(ctx, id)
	if err != nil {
		return m, err
	}
	if err := transition(&m, domain.MarketStatusResolved); err != nil {
		return m, err
	}
	m.Result = &outcome
	m.ResolvedAt = resolvedAt
	if err := tx.PutMarket(ctx, m); err != nil {
		return m, err
	}
	return m, nil
}

// Cancel moves an active market to canceled. Only the administrator may
// cancel. Deposits in a canceled market become refundable.
func (r *MarketRegistry) Cancel(ctx context.Context, tx *store.Tx, caller, id string, now uint64) (domain.Market, error) {
	admin, err := r.Admin(ctx, tx)
	if err != nil {
		return domain.Market{}, err
	}
	if caller != admin {
		return domain.Market{}, domain.ErrNotAdmin
	}
	m, err := tx.Market(ctx, id)
	if err != nil {
		return m, err
	}
	if err := transition(&m, domain.MarketStatusCanceled); err != nil {
		return m, err
	}
	m.CanceledAt = now
	if err := tx.PutMarket(ctx, m); err != nil {
		return m, err
	}
	tx.Emit(domain.TopicMarketCanceled, m.ID, now, map[string]any{
		"market_id":        m.ID,
		"total_collateral": m.TotalCollateral.String(),
	})

	r.logger.InfoContext(ctx, "market_registry: market canceled", slog.String("market_id", m.ID))
	return m, nil
}

// AddCollateral increases the market's collateral total.
func (r *MarketRegistry) AddCollateral(ctx context.Context, tx *store.Tx, id string, amount decimal.Decimal) (domain.Market, error) {
	m, err := tx.Market(ctx, id)
	if err != nil {
		return m, err
	}
	total, err := domain.CheckedAdd(m.TotalCollateral, amount)
	if err != nil {
		return m, err
	}
	m.TotalCollateral = total
	return m, tx.PutMarket(ctx, m)
}

// ReleaseCollateral decreases the market's collateral total. The total never
// goes negative.
func (r *MarketRegistry) ReleaseCollateral(ctx context.Context, tx *store.Tx, id string, amount decimal.Decimal) (domain.Market, error) {
	m, err := tx.Market(ctx, id)
	if err != nil {
		return m, err
	}
	if m.TotalCollateral.LessThan(amount) {
		return m, domain.ErrInsufficientCollateral
	}
	if m.TotalCollateral, err = domain.CheckedSub(m.TotalCollateral, amount); err != nil {
		return m, err
	}
	return m, tx.PutMarket(ctx, m)
}

// transition is the only place a market's status changes.
func transition(m *domain.Market, to domain.MarketStatus) error {
	switch m.Status {
	case domain.MarketStatusActive:
	case domain.MarketStatusResolved:
		return domain.ErrMarketAlreadyResolved
	default:
		return domain.ErrMarketNotActive
	}
	if to != domain.MarketStatusResolved && to != domain.MarketStatusCanceled {
		return fmt.Errorf("service: invalid market transition to %q", to)
	}
	m.Status = to
	return nil
}
