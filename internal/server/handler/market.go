package handler

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/service"
	"github.com/alanyoungcy/predictledger/internal/validation"
)

// MarketService is the part of the ledger the market handler needs.
type MarketService interface {
	CreateMarket(ctx context.Context, req service.CreateMarketRequest) (domain.Market, error)
	Market(ctx context.Context, id string) (domain.Market, error)
	CancelMarket(ctx context.Context, caller, id string) (domain.Market, error)
	Resolve(ctx context.Context, req service.ResolveRequest) (domain.Market, error)
	MarketStats(ctx context.Context, marketID string) (service.MarketStats, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

type createMarketRequest struct {
	Creator         string           `json:"creator"`
	Question        string           `json:"question"`
	EndTime         uint64           `json:"end_time"`
	OracleKey       domain.PublicKey `json:"oracle_key"`
	CollateralAsset string           `json:"collateral_asset"`
}

// CreateMarket creates a market. The creator defaults to the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var body createMarketRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.markets.CreateMarket(r.Context(), service.CreateMarketRequest{
		Creator:         actingAs(r, body.Creator),
		Question:        body.Question,
		EndTime:         body.EndTime,
		OracleKey:       body.OracleKey,
		CollateralAsset: body.CollateralAsset,
	})
	if err != nil {
		writeLedgerError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetMarket returns a market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.Market(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeLedgerError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type cancelMarketRequest struct {
	Caller string `json:"caller"`
}

// CancelMarket cancels an active market.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	var body cancelMarketRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	m, err := h.markets.CancelMarket(r.Context(), actingAs(r, body.Caller), pathParam(r, "id"))
	if err != nil {
		writeLedgerError(w, r, h.logger, "cancel market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type resolveRequest struct {
	Outcome   string            `json:"outcome"`
	Signature string            `json:"signature"`
	OracleKey *domain.PublicKey `json:"oracle_key,omitempty"`
}

// Resolve submits an oracle attestation. outcome is "yes" or "no"; the
// signature is hex encoded.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := validation.ParseOutcome(body.Outcome)
	if err != nil {
		writeLedgerError(w, r, h.logger, "resolve", err)
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(body.Signature, "0x"))
	if err != nil {
		writeLedgerError(w, r, h.logger, "resolve", domain.ErrInvalidSignature)
		return
	}

	m, err := h.markets.Resolve(r.Context(), service.ResolveRequest{
		MarketID:  pathParam(r, "id"),
		Outcome:   outcome,
		Signature: sig,
		OracleKey: body.OracleKey,
	})
	if err != nil {
		writeLedgerError(w, r, h.logger, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Stats returns aggregate share totals.
// GET /api/markets/{id}/stats
func (h *MarketHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.markets.MarketStats(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeLedgerError(w, r, h.logger, "market stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
