package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
)

// OracleResolver finalizes markets from oracle attestations. The oracle is
// not a caller identity: a resolution is authorized by a valid signature
// from the market's registered key, whoever submits it.
type OracleResolver struct {
	markets  *MarketRegistry
	verifier domain.SignatureVerifier
	logger   *slog.Logger
}

// NewOracleResolver creates an OracleResolver.
func NewOracleResolver(markets *MarketRegistry, verifier domain.SignatureVerifier, logger *slog.Logger) *OracleResolver {
	return &OracleResolver{
		markets:  markets,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "oracle_resolver")),
	}
}

// Resolve verifies signature over the oracle message for (marketID, outcome)
// and resolves the market. If presented is non-nil it must equal the
// registered key; that check narrows errors for callers but authorizes
// nothing by itself.
func (o *OracleResolver) Resolve(ctx context.Context, tx *store.Tx, marketID string, outcome bool, signature []byte, presented *domain.PublicKey, now uint64) (domain.Market, error) {
	m, err := o.markets.Get(ctx, tx, marketID)
	if err != nil {
		return m, err
	}
	switch m.Status {
	case domain.MarketStatusActive:
	case domain.MarketStatusResolved:
		return m, domain.ErrMarketAlreadyResolved
	default:
		return m, domain.ErrMarketNotActive
	}

	if presented != nil {
		if err := crypto.CheckOracleKey(m, *presented); err != nil {
			return m, err
		}
	}
	msg := crypto.OracleMessage(m.ID, outcome)
	if err := o.verifier.Verify(m.OraclePublicKey, msg, signature); err != nil {
		o.logger.WarnContext(ctx, "oracle_resolver: signature rejected",
			slog.String("market_id", m.ID),
			slog.Bool("outcome", outcome),
		)
		return m, domain.ErrInvalidSignature
	}

	m, err = o.markets.TransitionToResolved(ctx, tx, m.ID, outcome, now)
	if err != nil {
		return m, err
	}
	tx.Emit(domain.TopicMarketResolved, m.ID, now, map[string]any{
		"market_id": m.ID,
		"outcome":   outcome,
		"timestamp": now,
	})

	o.logger.InfoContext(ctx, "oracle_resolver: market resolved",
		slog.String("market_id", m.ID),
		slog.Bool("outcome", outcome),
	)
	return m, nil
}
