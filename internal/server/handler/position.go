package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/service"
)

// PositionService is the part of the ledger the position handler needs.
type PositionService interface {
	Deposit(ctx context.Context, marketID, depositor string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, marketID, user string, amount decimal.Decimal) (decimal.Decimal, error)
	UpdatePosition(ctx context.Context, req service.UpdatePositionRequest) (domain.Position, error)
	Position(ctx context.Context, marketID, user string) (domain.Position, error)
	Settle(ctx context.Context, marketID, user string) (decimal.Decimal, error)
	PotentialPayout(ctx context.Context, marketID, user string) (decimal.Decimal, bool, error)
}

// PositionHandler serves collateral, position and settlement endpoints.
type PositionHandler struct {
	ledger PositionService
	logger *slog.Logger
}

func NewPositionHandler(ledger PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger: ledger,
		logger: logger.With(slog.String("handler", "position")),
	}
}

type collateralRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type collateralResponse struct {
	MarketID string          `json:"market_id"`
	User     string          `json:"user"`
	Amount   decimal.Decimal `json:"amount"`
	Total    decimal.Decimal `json:"total"`
}

// Deposit moves collateral into the market. Total is the new locked
// collateral.
// POST /api/markets/{id}/deposits
func (h *PositionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveCollateral(w, r, "deposit", h.ledger.Deposit)
}

// Withdraw returns collateral to the user. Total is the remaining deposit.
// POST /api/markets/{id}/withdrawals
func (h *PositionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveCollateral(w, r, "withdraw", h.ledger.Withdraw)
}

func (h *PositionHandler) moveCollateral(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, marketID, user string, amount decimal.Decimal) (decimal.Decimal, error),
) {
	var body collateralRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	marketID := pathParam(r, "id")
	user := actingAs(r, body.User)

	total, err := fn(r.Context(), marketID, user, amount)
	if err != nil {
		writeLedgerError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, collateralResponse{
		MarketID: marketID,
		User:     user,
		Amount:   amount,
		Total:    total,
	})
}

type updatePositionRequest struct {
	User     string `json:"user"`
	YesDelta string `json:"yes_delta"`
	NoDelta  string `json:"no_delta"`
	PriceBps int64  `json:"price_bps"`
}

// UpdatePosition applies share deltas. Missing deltas are zero.
// POST /api/markets/{id}/positions
func (h *PositionHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var body updatePositionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	yes, err := optionalAmount(body.YesDelta)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	no, err := optionalAmount(body.NoDelta)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.User == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	p, err := h.ledger.UpdatePosition(r.Context(), service.UpdatePositionRequest{
		MarketID: pathParam(r, "id"),
		User:     body.User,
		YesDelta: yes,
		NoDelta:  no,
		PriceBps: body.PriceBps,
	})
	if err != nil {
		writeLedgerError(w, r, h.logger, "update position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetPosition returns a user's position.
// GET /api/markets/{id}/positions/{user}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.ledger.Position(r.Context(), pathParam(r, "id"), pathParam(r, "user"))
	if err != nil {
		writeLedgerError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type settleRequest struct {
	User string `json:"user"`
}

// Settle pays out the caller's position in a resolved market.
// POST /api/markets/{id}/settlements
func (h *PositionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var body settleRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	marketID := pathParam(r, "id")
	user := actingAs(r, body.User)

	payout, err := h.ledger.Settle(r.Context(), marketID, user)
	if err != nil {
		writeLedgerError(w, r, h.logger, "settle", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"user":      user,
		"payout":    payout,
	})
}

// Payout previews a settlement. resolved is false until the market resolves.
// GET /api/markets/{id}/positions/{user}/payout
func (h *PositionHandler) Payout(w http.ResponseWriter, r *http.Request) {
	marketID, user := pathParam(r, "id"), pathParam(r, "user")
	amount, ok, err := h.ledger.PotentialPayout(r.Context(), marketID, user)
	if err != nil {
		writeLedgerError(w, r, h.logger, "payout preview", err)
		return
	}
	resp := map[string]any{
		"market_id": marketID,
		"user":      user,
		"resolved":  ok,
	}
	if ok {
		resp["payout"] = amount
	}
	writeJSON(w, http.StatusOK, resp)
}

func optionalAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return parseAmount(s)
}
