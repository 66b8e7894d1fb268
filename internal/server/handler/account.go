package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

// AccountService funds and reads custody-ledger balances.
type AccountService interface {
	Fund(ctx context.Context, caller, asset, holder string, amount decimal.Decimal) (decimal.Decimal, error)
	Balance(ctx context.Context, asset, holder string) (decimal.Decimal, error)
}

// AccountHandler serves balance endpoints for ledgers that hold token
// balances themselves.
type AccountHandler struct {
	accounts     AccountService
	defaultAsset string
	logger       *slog.Logger
}

func NewAccountHandler(accounts AccountService, defaultAsset string, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:     accounts,
		defaultAsset: defaultAsset,
		logger:       logger.With(slog.String("handler", "account")),
	}
}

type mintRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Mint credits a holder. Administrator only.
// POST /api/accounts/{holder}/mint
func (h *AccountHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var body mintRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset := h.asset(body.Asset)
	holder := pathParam(r, "holder")

	balance, err := h.accounts.Fund(r.Context(), actingAs(r, body.Caller), asset, holder, amount)
	if err != nil {
		writeLedgerError(w, r, h.logger, "mint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holder":  holder,
		"asset":   asset,
		"balance": balance,
	})
}

// Balance returns a holder's balance.
// GET /api/accounts/{holder}/balance?asset=
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	asset := h.asset(r.URL.Query().Get("asset"))
	holder := pathParam(r, "holder")
	balance, err := h.accounts.Balance(r.Context(), asset, holder)
	if err != nil {
		writeLedgerError(w, r, h.logger, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holder":  holder,
		"asset":   asset,
		"balance": balance,
	})
}

func (h *AccountHandler) asset(a string) string {
	if a == "" {
		return h.defaultAsset
	}
	return a
}
