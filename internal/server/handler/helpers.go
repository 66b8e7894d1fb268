package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/auth"
	"github.com/alanyoungcy/predictledger/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it with status. A marshal failure
// falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

type errorResponse struct {
	Error    string `json:"error"`
	Code     uint32 `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// StatusFor maps a ledger error to an HTTP status. Errors outside the
// ledger taxonomy are 500s.
func StatusFor(err error) int {
	code, ok := domain.CodeOf(err)
	if !ok {
		if errors.Is(err, domain.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}
	switch code {
	case 1, 12: // market not found, no position
		return http.StatusNotFound
	case 2, 3, 4, 5, 10, 11: // lifecycle conflicts
		return http.StatusConflict
	case 13, 22, 30, 31, 32, 33:
		return http.StatusBadRequest
	case 20, 21, 40, 41:
		return http.StatusForbidden
	case 50, 60:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError renders err. Ledger errors carry their code and
// category; anything else is logged and hidden behind a generic message.
func writeLedgerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := StatusFor(err)
	code, ok := domain.CodeOf(err)
	if !ok {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, op+" failed")
		return
	}
	var le *domain.Error
	errors.As(err, &le)
	writeJSON(w, status, errorResponse{
		Error:    le.Msg,
		Code:     uint32(code),
		Category: code.Category(),
	})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseAmount parses a decimal string. Whole-number checks happen in the
// ledger so the error code stays consistent.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// actingAs returns explicit when set, else the authenticated principal.
func actingAs(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	p, _ := auth.Principal(r.Context())
	return p
}

// pathParam extracts a named path parameter (Go 1.22+ routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
