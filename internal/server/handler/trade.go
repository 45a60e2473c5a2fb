package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// TradeService defines the methods the trade handler requires from the
// service layer.
type TradeService interface {
	ExecuteTrade(ctx context.Context, id string, caller common.Address, direction domain.TradeDirection) (domain.Trade, error)
	ListTrades(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Trade, error)
	ListEvents(ctx context.Context, id string, opts domain.ListOpts) ([]domain.VaultEvent, error)
}

// TradeHandler serves trade settlement and journal HTTP endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeResponse is the JSON shape of one settled trade.
type tradeResponse struct {
	ID         string    `json:"id"`
	VaultID    string    `json:"vault_id"`
	Direction  string    `json:"direction"`
	Caller     string    `json:"caller"`
	AmountIn   string    `json:"amount_in"`
	AmountOut  string    `json:"amount_out"`
	TradeFee   string    `json:"trade_fee"`
	PerfFee    string    `json:"perf_fee,omitempty"`
	Profit     string    `json:"profit"`
	ExecutedAt time.Time `json:"executed_at"`
}

func toTradeResponse(t domain.Trade) tradeResponse {
	out := tradeResponse{
		ID:         t.ID,
		VaultID:    t.VaultID,
		Direction:  string(t.Direction),
		Caller:     t.Caller.Hex(),
		AmountIn:   t.AmountIn.String(),
		AmountOut:  t.AmountOut.String(),
		TradeFee:   t.TradeFee.String(),
		Profit:     t.Profit.String(),
		ExecutedAt: t.ExecutedAt,
	}
	if t.PerfFee != nil {
		out.PerfFee = t.PerfFee.String()
	}
	return out
}

// executeRequest is the POST body for a trade settlement.
type executeRequest struct {
	Caller    string `json:"caller"`
	Direction string `json:"direction"` // "buy" or "sell"
}

// Execute quotes and settles one position leg for a vault. The caller must
// be on the vault's white list.
// POST /api/vaults/{id}/trades
func (h *TradeHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	var direction domain.TradeDirection
	switch req.Direction {
	case string(domain.TradeBuy):
		direction = domain.TradeBuy
	case string(domain.TradeSell):
		direction = domain.TradeSell
	default:
		writeError(w, http.StatusBadRequest, "direction must be buy or sell")
		return
	}

	trade, err := h.trades.ExecuteTrade(r.Context(), id, caller, direction)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "vault not found")
		case errors.Is(err, domain.ErrNotAuthorized):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, domain.ErrWrongPositionState),
			errors.Is(err, domain.ErrSlippageExceeded):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: execute trade failed",
				slog.String("vault_id", id),
				slog.String("direction", req.Direction),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to execute trade")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toTradeResponse(trade))
}

// ListTrades returns persisted trades for a vault with pagination.
// GET /api/vaults/{id}/trades?limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	opts := parseListOpts(r)

	trades, err := h.trades.ListTrades(r.Context(), id, opts)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vault not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("vault_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": out,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// eventResponse is the JSON shape of one journal entry.
type eventResponse struct {
	ID        int64          `json:"id"`
	VaultID   string         `json:"vault_id"`
	Type      string         `json:"type"`
	Detail    map[string]any `json:"detail"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// ListEvents returns the persisted event journal for a vault.
// GET /api/vaults/{id}/events?limit=50&offset=0
func (h *TradeHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	opts := parseListOpts(r)

	events, err := h.trades.ListEvents(r.Context(), id, opts)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vault not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("vault_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:        e.ID,
			VaultID:   e.VaultID,
			Type:      e.Type,
			Detail:    e.Detail,
			EmittedAt: e.EmittedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
