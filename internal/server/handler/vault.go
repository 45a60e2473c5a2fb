package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// VaultService defines the methods the vault handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type VaultService interface {
	GetState(ctx context.Context, id string) (domain.VaultState, error)
	ListStates(ctx context.Context) ([]domain.VaultState, error)
	Deposit(ctx context.Context, id string, caller common.Address, asset string, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, id string, caller common.Address, shares *big.Int, inQuote bool) (*big.Int, error)
	EstimatedDeposit(ctx context.Context, id string, addr common.Address) (*big.Int, error)
}

// VaultHandler serves vault state and deposit/withdraw HTTP endpoints.
type VaultHandler struct {
	vaults VaultService
	logger *slog.Logger
}

// NewVaultHandler creates a VaultHandler with the given service and logger.
func NewVaultHandler(vaults VaultService, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{
		vaults: vaults,
		logger: logger,
	}
}

// stateResponse is the JSON shape of one vault state snapshot. Big integers
// are rendered as decimal strings to avoid JSON number precision loss.
type stateResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Position    string    `json:"position"`
	TotalShares string    `json:"total_shares"`
	SoldAmount  string    `json:"sold_amount"`
	Profit      string    `json:"profit"`
	PoolSize    string    `json:"pool_size"`
	MaxCap      string    `json:"max_cap"`
	TakenAt     time.Time `json:"taken_at"`
}

func toStateResponse(s domain.VaultState) stateResponse {
	return stateResponse{
		ID:          s.ID,
		Name:        s.Name,
		Position:    string(s.Position),
		TotalShares: s.TotalShares.String(),
		SoldAmount:  s.SoldAmount.String(),
		Profit:      s.Profit.String(),
		PoolSize:    s.PoolSize.String(),
		MaxCap:      s.MaxCap.String(),
		TakenAt:     s.TakenAt,
	}
}

// ListVaults returns the current state of every vault.
// GET /api/vaults
func (h *VaultHandler) ListVaults(w http.ResponseWriter, r *http.Request) {
	states, err := h.vaults.ListStates(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list vaults failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list vaults")
		return
	}

	out := make([]stateResponse, 0, len(states))
	for _, s := range states {
		out = append(out, toStateResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vaults": out,
		"total":  len(out),
	})
}

// GetVault returns the state of a single vault by id or name.
// GET /api/vaults/{id}
func (h *VaultHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing vault id")
		return
	}

	state, err := h.vaults.GetState(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vault not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get vault failed",
			slog.String("vault_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get vault")
		return
	}

	writeJSON(w, http.StatusOK, toStateResponse(state))
}

// depositRequest is the POST body for a deposit.
type depositRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`  // "quote" or "base"
	Amount string `json:"amount"` // decimal string in smallest units
}

// Deposit credits a depositor and mints shares.
// POST /api/vaults/{id}/deposit
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	shares, err := h.vaults.Deposit(r.Context(), id, caller, req.Asset, amount)
	if err != nil {
		h.writeVaultError(w, r, id, "deposit", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"vault_id": id,
		"shares":   shares.String(),
	})
}

// withdrawRequest is the POST body for a withdrawal.
type withdrawRequest struct {
	Caller  string `json:"caller"`
	Shares  string `json:"shares"`
	InQuote bool   `json:"in_quote"`
}

// Withdraw burns shares and pays out the holder's slice of the pool.
// POST /api/vaults/{id}/withdraw
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	shares, ok := parseAmount(req.Shares)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid shares")
		return
	}

	amount, err := h.vaults.Withdraw(r.Context(), id, caller, shares, req.InQuote)
	if err != nil {
		h.writeVaultError(w, r, id, "withdraw", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"vault_id": id,
		"amount":   amount.String(),
	})
}

// GetHolding returns the current quote-denominated value of one holder's
// shares.
// GET /api/vaults/{id}/holdings/{addr}
func (h *VaultHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	addr, ok := parseAddress(pathParam(r, "addr"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}

	value, err := h.vaults.EstimatedDeposit(r.Context(), id, addr)
	if err != nil {
		h.writeVaultError(w, r, id, "holding", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"vault_id": id,
		"holder":   addr.Hex(),
		"value":    value.String(),
	})
}

// writeVaultError maps domain errors onto HTTP status codes.
func (h *VaultHandler) writeVaultError(w http.ResponseWriter, r *http.Request, id, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "vault not found")
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMaxCapExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrWrongPositionState),
		errors.Is(err, domain.ErrSlippageExceeded):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("vault_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
