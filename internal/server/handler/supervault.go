package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/supervault"
)

// SupervaultHandler serves the aggregator vault endpoints. It talks to the
// supervault engine directly; the supervault keeps no off-engine state.
type SupervaultHandler struct {
	sv     *supervault.Supervault
	logger *slog.Logger
}

// NewSupervaultHandler creates a SupervaultHandler.
func NewSupervaultHandler(sv *supervault.Supervault, logger *slog.Logger) *SupervaultHandler {
	return &SupervaultHandler{
		sv:     sv,
		logger: logger,
	}
}

// GetState returns the supervault's aggregate state.
// GET /api/supervault
func (h *SupervaultHandler) GetState(w http.ResponseWriter, r *http.Request) {
	pool, err := h.sv.EstimatedPoolSize(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: supervault pool size failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute pool size")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            h.sv.ID(),
		"address":       h.sv.Address().Hex(),
		"pool_size":     pool.String(),
		"total_shares":  h.sv.TotalShares().String(),
		"active_vaults": h.sv.ActiveVaults(),
	})
}

// Deposit splits a quote-asset deposit across the active child vaults.
// POST /api/supervault/deposit
func (h *SupervaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
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

	shares, err := h.sv.Deposit(r.Context(), caller, amount)
	if err != nil {
		h.writeSupervaultError(w, r, "deposit", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"shares": shares.String(),
	})
}

// Withdraw redeems supervault shares proportionally from every child vault.
// POST /api/supervault/withdraw
func (h *SupervaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
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

	amount, err := h.sv.Withdraw(r.Context(), caller, shares)
	if err != nil {
		h.writeSupervaultError(w, r, "withdraw", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"amount": amount.String(),
	})
}

// activeVaultsRequest is the PUT body for changing the deposit routing set.
type activeVaultsRequest struct {
	Caller string `json:"caller"`
	Active []int  `json:"active"`
}

// UpdateActiveVaults changes which child vaults receive new deposits. Only
// the strategist may call this; existing capital does not move.
// PUT /api/supervault/active
func (h *SupervaultHandler) UpdateActiveVaults(w http.ResponseWriter, r *http.Request) {
	var req activeVaultsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.sv.UpdateActiveVaults(r.Context(), caller, req.Active); err != nil {
		h.writeSupervaultError(w, r, "update active vaults", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_vaults": h.sv.ActiveVaults(),
	})
}

func (h *SupervaultHandler) writeSupervaultError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMaxCapExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: supervault "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
