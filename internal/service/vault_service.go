package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/factory"
	"github.com/upvault/vaultd/internal/vault"
)

// VaultService is the orchestration layer between the API surface and the
// accounting engines. It resolves vaults through the factory registry,
// persists settled trades, serves cached state on the read path, and
// audit-logs every mutating call.
type VaultService struct {
	registry *factory.Factory
	quoter   domain.Quoter
	trades   domain.TradeStore
	events   domain.VaultEventStore
	states   domain.VaultStateCache
	audit    domain.AuditStore
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewVaultService creates a VaultService. states, audit and bus may be nil;
// the corresponding side effects are then skipped.
func NewVaultService(
	registry *factory.Factory,
	quoter domain.Quoter,
	trades domain.TradeStore,
	events domain.VaultEventStore,
	states domain.VaultStateCache,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *VaultService {
	return &VaultService{
		registry: registry,
		quoter:   quoter,
		trades:   trades,
		events:   events,
		states:   states,
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "vault_service")),
	}
}

// Vault resolves a vault by id, falling back to a name lookup so API clients
// can use either.
func (s *VaultService) Vault(id string) (*vault.Accounting, error) {
	v, err := s.registry.Get(id)
	if err == nil {
		return v, nil
	}
	return s.registry.GetByName(id)
}

// GetState returns the latest state snapshot for a vault, serving from the
// cache when possible and computing from the engine on a miss.
func (s *VaultService) GetState(ctx context.Context, id string) (domain.VaultState, error) {
	v, err := s.Vault(id)
	if err != nil {
		return domain.VaultState{}, err
	}

	if s.states != nil {
		if state, err := s.states.GetState(ctx, v.ID()); err == nil {
			return state, nil
		}
	}

	state, err := v.State(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("vault_service: compute state %s: %w", v.ID(), err)
	}

	if s.states != nil {
		if cacheErr := s.states.SetState(ctx, state); cacheErr != nil {
			s.logger.WarnContext(ctx, "vault_service: state cache set failed",
				slog.String("vault_id", v.ID()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return state, nil
}

// ListStates returns the current state of every registered vault.
func (s *VaultService) ListStates(ctx context.Context) ([]domain.VaultState, error) {
	vaults := s.registry.List()
	states := make([]domain.VaultState, 0, len(vaults))
	for _, v := range vaults {
		state, err := s.GetState(ctx, v.ID())
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

// Deposit credits amount of the vault's quote or base asset from caller and
// returns the shares minted. asset must be "quote" or "base".
func (s *VaultService) Deposit(ctx context.Context, id string, caller common.Address, asset string, amount *big.Int) (*big.Int, error) {
	v, err := s.Vault(id)
	if err != nil {
		return nil, err
	}

	var shares *big.Int
	switch asset {
	case "quote":
		shares, err = v.DepositQuote(ctx, caller, amount)
	case "base":
		shares, err = v.DepositBase(ctx, caller, amount)
	default:
		return nil, fmt.Errorf("vault_service: %w: asset must be quote or base", domain.ErrInvalidAmount)
	}
	if err != nil {
		return nil, err
	}

	s.invalidateState(ctx, v.ID())
	s.auditLog(ctx, "deposit", map[string]any{
		"vault_id": v.ID(),
		"caller":   caller.Hex(),
		"asset":    asset,
		"amount":   amount.String(),
		"shares":   shares.String(),
	})
	return shares, nil
}

// Withdraw burns shares for caller and returns the amount paid out. When
// inQuote is true the base leg is converted to quote before payout.
func (s *VaultService) Withdraw(ctx context.Context, id string, caller common.Address, shares *big.Int, inQuote bool) (*big.Int, error) {
	v, err := s.Vault(id)
	if err != nil {
		return nil, err
	}

	var out *big.Int
	if inQuote {
		out, err = v.WithdrawQuote(ctx, caller, shares)
	} else {
		out, err = v.Withdraw(ctx, caller, shares)
	}
	if err != nil {
		return nil, err
	}

	s.invalidateState(ctx, v.ID())
	s.auditLog(ctx, "withdraw", map[string]any{
		"vault_id": v.ID(),
		"caller":   caller.Hex(),
		"shares":   shares.String(),
		"amount":   out.String(),
		"in_quote": inQuote,
	})
	return out, nil
}

// ExecuteTrade quotes and settles one full position leg: it asks the engine
// for the swap size, fetches an aggregator quote for it, and hands the quote
// back to the engine for slippage-gated settlement. The settled trade is
// persisted and published on the trade channel.
func (s *VaultService) ExecuteTrade(ctx context.Context, id string, caller common.Address, direction domain.TradeDirection) (domain.Trade, error) {
	v, err := s.Vault(id)
	if err != nil {
		return domain.Trade{}, err
	}

	swapAmount, err := v.NextSwapAmount(direction)
	if err != nil {
		return domain.Trade{}, err
	}

	params := v.Params()
	from, to := params.QuoteAsset, params.BaseAsset
	if direction == domain.TradeSell {
		from, to = params.BaseAsset, params.QuoteAsset
	}

	quote, err := s.quoter.Quote(ctx, from, to, swapAmount)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("vault_service: aggregator quote: %w", err)
	}

	var trade domain.Trade
	if direction == domain.TradeBuy {
		trade, err = v.Buy(ctx, caller, quote)
	} else {
		trade, err = v.Sell(ctx, caller, quote)
	}
	if err != nil {
		return domain.Trade{}, err
	}

	if err := s.trades.Insert(ctx, trade); err != nil {
		// The settlement already committed; losing the row is an
		// operational problem, not an accounting one.
		s.logger.ErrorContext(ctx, "vault_service: persist trade failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publishTrade(ctx, trade)
	s.invalidateState(ctx, v.ID())
	s.auditLog(ctx, "trade", map[string]any{
		"vault_id":   v.ID(),
		"trade_id":   trade.ID,
		"caller":     caller.Hex(),
		"direction":  string(trade.Direction),
		"amount_in":  trade.AmountIn.String(),
		"amount_out": trade.AmountOut.String(),
	})

	s.logger.InfoContext(ctx, "vault_service: trade settled",
		slog.String("vault_id", v.ID()),
		slog.String("trade_id", trade.ID),
		slog.String("direction", string(trade.Direction)),
	)
	return trade, nil
}

// ListTrades returns persisted trades for a vault.
func (s *VaultService) ListTrades(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Trade, error) {
	v, err := s.Vault(id)
	if err != nil {
		return nil, err
	}
	trades, err := s.trades.ListByVault(ctx, v.ID(), opts)
	if err != nil {
		return nil, fmt.Errorf("vault_service: list trades: %w", err)
	}
	return trades, nil
}

// ListEvents returns the persisted event journal for a vault.
func (s *VaultService) ListEvents(ctx context.Context, id string, opts domain.ListOpts) ([]domain.VaultEvent, error) {
	v, err := s.Vault(id)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByVault(ctx, v.ID(), opts)
	if err != nil {
		return nil, fmt.Errorf("vault_service: list events: %w", err)
	}
	return events, nil
}

// EstimatedDeposit returns the current quote-denominated value of addr's
// shares in the vault.
func (s *VaultService) EstimatedDeposit(ctx context.Context, id string, addr common.Address) (*big.Int, error) {
	v, err := s.Vault(id)
	if err != nil {
		return nil, err
	}
	return v.EstimatedDeposit(ctx, addr)
}

// tradeEnvelope is the JSON wire format for settled trades on the bus.
type tradeEnvelope struct {
	ID         string    `json:"id"`
	VaultID    string    `json:"vault_id"`
	Direction  string    `json:"direction"`
	AmountIn   string    `json:"amount_in"`
	AmountOut  string    `json:"amount_out"`
	TradeFee   string    `json:"trade_fee"`
	PerfFee    string    `json:"perf_fee,omitempty"`
	Profit     string    `json:"profit"`
	ExecutedAt time.Time `json:"executed_at"`
}

func (s *VaultService) publishTrade(ctx context.Context, trade domain.Trade) {
	if s.bus == nil {
		return
	}
	env := tradeEnvelope{
		ID:         trade.ID,
		VaultID:    trade.VaultID,
		Direction:  string(trade.Direction),
		AmountIn:   trade.AmountIn.String(),
		AmountOut:  trade.AmountOut.String(),
		TradeFee:   trade.TradeFee.String(),
		Profit:     trade.Profit.String(),
		ExecutedAt: trade.ExecutedAt,
	}
	if trade.PerfFee != nil {
		env.PerfFee = trade.PerfFee.String()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelTrades, payload); err != nil {
		s.logger.WarnContext(ctx, "vault_service: publish trade failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
	}
}

// invalidateState refreshes the cached snapshot after a mutation so the read
// path converges immediately instead of waiting for the snapshot loop.
func (s *VaultService) invalidateState(ctx context.Context, vaultID string) {
	if s.states == nil {
		return
	}
	v, err := s.registry.Get(vaultID)
	if err != nil {
		return
	}
	state, err := v.State(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "vault_service: state refresh failed",
			slog.String("vault_id", vaultID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.states.SetState(ctx, state); err != nil {
		s.logger.WarnContext(ctx, "vault_service: state cache set failed",
			slog.String("vault_id", vaultID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *VaultService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "vault_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
