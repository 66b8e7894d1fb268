package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/auth"
	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
)

// Funding is implemented by asset-transfer ports that keep balances in the
// ledger host and can credit accounts.
type Funding interface {
	Mint(ctx context.Context, kv domain.KV, asset, holder string, amount decimal.Decimal) (decimal.Decimal, error)
	Balance(ctx context.Context, kv domain.KV, asset, holder string) (decimal.Decimal, error)
}

// Ports are the collaborators the ledger core is built on. Host is required;
// the rest default as noted.
type Ports struct {
	Host     domain.TxRunner
	Transfer domain.AssetTransfer     // nil: collateral moves outside the ledger
	Auth     domain.Authorizer        // nil: auth.AllowAll
	Sink     domain.EventSink         // nil: events are dropped
	Clock    domain.Clock             // nil: domain.SystemClock
	IDs      domain.IDGenerator       // nil: CounterIDs
	Verifier domain.SignatureVerifier // nil: crypto.Ed25519Verifier
}

// Config holds ledger-wide settings.
type Config struct {
	// CustodyAddress is the principal holding deposited collateral.
	CustodyAddress string
	// DefaultAsset is used when a market is created without one.
	DefaultAsset string
}

// CreateMarketRequest is the input to Core.CreateMarket.
type CreateMarketRequest struct {
	Creator         string
	Question        string
	EndTime         uint64
	OracleKey       domain.PublicKey
	CollateralAsset string
}

// UpdatePositionRequest is the input to Core.UpdatePosition.
type UpdatePositionRequest struct {
	MarketID string
	User     string
	YesDelta decimal.Decimal
	NoDelta  decimal.Decimal
	PriceBps int64
}

// ResolveRequest is the input to Core.Resolve.
type ResolveRequest struct {
	MarketID  string
	Outcome   bool
	Signature []byte
	// OracleKey, if set, must match the market's registered key.
	OracleKey *domain.PublicKey
}

// Core is the ledger's public surface. Every method runs in exactly one host
// transaction: it either commits every write and then publishes its events,
// or leaves no trace.
type Core struct {
	runner     *store.Runner
	registry   *MarketRegistry
	positions  *PositionLedger
	collateral *CollateralEngine
	oracle     *OracleResolver
	settlement *SettlementEngine
	auth       domain.Authorizer
	clock      domain.Clock
	funding    Funding
	cfg        Config
	logger     *slog.Logger
}

// NewCore wires the ledger components over ports.
func NewCore(p Ports, cfg Config, logger *slog.Logger) *Core {
	if p.Auth == nil {
		p.Auth = auth.AllowAll{}
	}
	if p.Clock == nil {
		p.Clock = domain.SystemClock{}
	}
	if p.IDs == nil {
		p.IDs = CounterIDs{}
	}
	if p.Verifier == nil {
		p.Verifier = crypto.Ed25519Verifier{}
	}
	if cfg.CustodyAddress == "" {
		cfg.CustodyAddress = "custody"
	}
	if cfg.DefaultAsset == "" {
		cfg.DefaultAsset = "collateral"
	}

	registry := NewMarketRegistry(p.IDs, logger)
	positions := NewPositionLedger(registry, logger)
	funding, _ := p.Transfer.(Funding)

	return &Core{
		runner:     store.NewRunner(p.Host, p.Sink, logger),
		registry:   registry,
		positions:  positions,
		collateral: NewCollateralEngine(registry, positions, p.Transfer, cfg.CustodyAddress, logger),
		oracle:     NewOracleResolver(registry, p.Verifier, logger),
		settlement: NewSettlementEngine(registry, positions, p.Transfer, cfg.CustodyAddress, logger),
		auth:       p.Auth,
		clock:      p.Clock,
		funding:    funding,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ledger")),
	}
}

func (c *Core) now() uint64 {
	return uint64(c.clock.Now().Unix())
}

// requireCaller authorizes the call for principal, which must also be
// usable as a key component.
func (c *Core) requireCaller(ctx context.Context, principal string) error {
	if !store.ValidIdentifier(principal) {
		return domain.ErrUnauthorized
	}
	return c.auth.RequireAuth(ctx, principal)
}

// Initialize records the administrator.
func (c *Core) Initialize(ctx context.Context, admin string) error {
	if !store.ValidIdentifier(admin) {
		return domain.ErrUnauthorized
	}
	return c.runner.Do(ctx, func(tx *store.Tx) error {
		return c.registry.Initialize(ctx, tx, admin)
	})
}

// Admin returns the administrator.
func (c *Core) Admin(ctx context.Context) (string, error) {
	var admin string
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		admin, err = c.registry.Admin(ctx, tx)
		return err
	})
	return admin, err
}

// CreateMarket creates a market. The caller must be authorized as the
// creator, and the creator must be the administrator.
func (c *Core) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Market, error) {
	if err := c.requireCaller(ctx, req.Creator); err != nil {
		return domain.Market{}, err
	}
	if req.CollateralAsset == "" {
		req.CollateralAsset = c.cfg.DefaultAsset
	}
	if !store.ValidIdentifier(req.CollateralAsset) {
		return domain.Market{}, fmt.Errorf("service: collateral asset %q: %w", req.CollateralAsset, domain.ErrTokenTransferFailed)
	}

	var m domain.Market
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		m, err = c.registry.Create(ctx, tx, CreateMarketParams(req), c.now())
		return err
	})
	return m, err
}

// Market loads a market.
func (c *Core) Market(ctx context.Context, id string) (domain.Market, error) {
	var m domain.Market
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		m, err = c.registry.Get(ctx, tx, id)
		return err
	})
	return m, err
}

// CancelMarket cancels an active market. Only the administrator may cancel.
func (c *Core) CancelMarket(ctx context.Context, caller, id string) (domain.Market, error) {
	if err := c.requireCaller(ctx, caller); err != nil {
		return domain.Market{}, err
	}
	var m domain.Market
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		m, err = c.registry.Cancel(ctx, tx, caller, id, c.now())
		return err
	})
	return m, err
}

// Deposit moves amount of the market's collateral from depositor into
// custody and returns the depositor's new locked collateral.
func (c *Core) Deposit(ctx context.Context, marketID, depositor string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := c.requireCaller(ctx, depositor); err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		total, err = c.collateral.Deposit(ctx, tx, marketID, depositor, amount, c.now())
		return err
	})
	return total, err
}

// Withdraw returns collateral to user and reports the remaining deposit.
func (c *Core) Withdraw(ctx context.Context, marketID, user string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := c.requireCaller(ctx, user); err != nil {
		return decimal.Zero, err
	}
	var remaining decimal.Decimal
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		remaining, err = c.collateral.Withdraw(ctx, tx, marketID, user, amount, c.now())
		return err
	})
	return remaining, err
}

// UpdatePosition applies share deltas for a user. Share changes come from
// the trading layer, which acts as the administrator.
func (c *Core) UpdatePosition(ctx context.Context, req UpdatePositionRequest) (domain.Position, error) {
	if !store.ValidIdentifier(req.User) {
		return domain.Position{}, domain.ErrUnauthorized
	}
	var p domain.Position
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		admin, err := c.registry.Admin(ctx, tx)
		if err != nil {
			return err
		}
		if err := c.auth.RequireAuth(ctx, admin); err != nil {
			return err
		}
		p, err = c.positions.UpdatePosition(ctx, tx, req.MarketID, req.User, req.YesDelta, req.NoDelta, req.PriceBps, c.now())
		return err
	})
	return p, err
}

// Position loads a user's position in a market.
func (c *Core) Position(ctx context.Context, marketID, user string) (domain.Position, error) {
	var p domain.Position
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		if _, err := c.registry.Get(ctx, tx, marketID); err != nil {
			return err
		}
		var err error
		p, err = c.positions.Get(ctx, tx, marketID, user)
		return err
	})
	return p, err
}

// Resolve finalizes a market from an oracle attestation.
func (c *Core) Resolve(ctx context.Context, req ResolveRequest) (domain.Market, error) {
	var m domain.Market
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		m, err = c.oracle.Resolve(ctx, tx, req.MarketID, req.Outcome, req.Signature, req.OracleKey, c.now())
		if err != nil {
			return err
		}
		return c.positions.UnlockAll(ctx, tx, m.ID)
	})
	return m, err
}

// Settle pays out user's position in a resolved market, once.
func (c *Core) Settle(ctx context.Context, marketID, user string) (decimal.Decimal, error) {
	if err := c.requireCaller(ctx, user); err != nil {
		return decimal.Zero, err
	}
	var payout decimal.Decimal
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		payout, err = c.settlement.Settle(ctx, tx, marketID, user, c.now())
		return err
	})
	return payout, err
}

// PotentialPayout previews a settlement. ok is false until resolution.
func (c *Core) PotentialPayout(ctx context.Context, marketID, user string) (amount decimal.Decimal, ok bool, err error) {
	err = c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		amount, ok, err = c.settlement.PotentialPayout(ctx, tx, marketID, user)
		return err
	})
	return amount, ok, err
}

// MarketStats totals a market's positions.
func (c *Core) MarketStats(ctx context.Context, marketID string) (MarketStats, error) {
	var st MarketStats
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		st, err = c.settlement.Stats(ctx, tx, marketID)
		return err
	})
	return st, err
}

// Fund credits holder with amount of asset. Administrator only, and only on
// transfer ports that keep balances in the ledger host.
func (c *Core) Fund(ctx context.Context, caller, asset, holder string, amount decimal.Decimal) (decimal.Decimal, error) {
	if c.funding == nil {
		return decimal.Zero, domain.ErrTokenTransferFailed
	}
	if err := c.requireCaller(ctx, caller); err != nil {
		return decimal.Zero, err
	}
	if !store.ValidIdentifier(holder) || !store.ValidIdentifier(asset) {
		return decimal.Zero, domain.ErrUnauthorized
	}
	var balance decimal.Decimal
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		admin, err := c.registry.Admin(ctx, tx)
		if err != nil {
			return err
		}
		if caller != admin {
			return domain.ErrNotAdmin
		}
		balance, err = c.funding.Mint(ctx, tx.KV(), asset, holder, amount)
		return err
	})
	if err == nil {
		c.logger.InfoContext(ctx, "ledger: account funded",
			slog.String("asset", asset),
			slog.String("holder", holder),
			slog.String("amount", amount.String()),
		)
	}
	return balance, err
}

// Balance reads holder's balance of asset on a ledger-hosted transfer port.
func (c *Core) Balance(ctx context.Context, asset, holder string) (decimal.Decimal, error) {
	if c.funding == nil {
		return decimal.Zero, domain.ErrTokenTransferFailed
	}
	var balance decimal.Decimal
	err := c.runner.Do(ctx, func(tx *store.Tx) error {
		var err error
		balance, err = c.funding.Balance(ctx, tx.KV(), asset, holder)
		return err
	})
	return balance, err
}
