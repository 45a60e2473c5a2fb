package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/upvault/vaultd/internal/domain"
)

// NextSwapAmount returns the amount an aggregator quote must be obtained for:
// the vault's full inventory in the source asset of the given direction, net
// of the trade fee. Returns ErrWrongPositionState when the direction does not
// match the current position.
func (a *Accounting) NextSwapAmount(direction domain.TradeDirection) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	asset, _, err := a.legs(direction)
	if err != nil {
		return nil, err
	}
	inventory := a.ledger.BalanceOf(asset, a.addr)
	swapAmount, _ := ApplyBps(inventory, a.params.Fees.PctTradeFee)
	return swapAmount, nil
}

// legs resolves the source and destination assets for a trade direction and
// enforces the position state machine: buy only from closed, sell only from
// open. Callers hold the lock.
func (a *Accounting) legs(direction domain.TradeDirection) (from, to domain.Asset, err error) {
	switch direction {
	case domain.TradeBuy:
		if a.position != domain.PositionClosed {
			return from, to, fmt.Errorf("vault %s: buy: %w", a.id, domain.ErrWrongPositionState)
		}
		return a.params.QuoteAsset, a.params.BaseAsset, nil
	case domain.TradeSell:
		if a.position != domain.PositionOpen {
			return from, to, fmt.Errorf("vault %s: sell: %w", a.id, domain.ErrWrongPositionState)
		}
		return a.params.BaseAsset, a.params.QuoteAsset, nil
	default:
		return from, to, fmt.Errorf("vault %s: unknown trade direction %q", a.id, direction)
	}
}

// slippageBoundLocked computes the minimum acceptable output for swapping
// swapAmount of from into to: the feed rate less the direction's slippage
// allowance. A quote exactly at the bound passes.
func (a *Accounting) slippageBoundLocked(ctx context.Context, direction domain.TradeDirection, swapAmount *big.Int) (*big.Int, error) {
	qp, bp, err := a.feeds(ctx)
	if err != nil {
		return nil, err
	}

	var expected *big.Int
	var bps int64
	if direction == domain.TradeBuy {
		expected = feedConvert(swapAmount, a.params.QuoteAsset, a.params.BaseAsset, qp, bp)
		bps = a.params.MaxSlippageBuyBps
	} else {
		expected = feedConvert(swapAmount, a.params.BaseAsset, a.params.QuoteAsset, bp, qp)
		bps = a.params.MaxSlippageSellBps
	}
	return applyHaircut(expected, bps), nil
}

// Buy swaps the vault's entire quote inventory (net of the trade fee) into
// the base asset and opens the position. The caller must be whitelisted and
// the aggregator quote must clear the slippage gate against the price feeds.
func (a *Accounting) Buy(ctx context.Context, caller common.Address, quote domain.Quote) (domain.Trade, error) {
	return a.settle(ctx, caller, domain.TradeBuy, quote)
}

// Sell swaps the vault's entire base inventory (net of the trade fee) back
// into the quote asset, closes the position, updates the running profit
// ratio, and when the cycle is profitable distributes performance fees and
// resets the ratio to breakeven.
func (a *Accounting) Sell(ctx context.Context, caller common.Address, quote domain.Quote) (domain.Trade, error) {
	return a.settle(ctx, caller, domain.TradeSell, quote)
}

func (a *Accounting) settle(ctx context.Context, caller common.Address, direction domain.TradeDirection, quote domain.Quote) (domain.Trade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.whitelist[caller] {
		return domain.Trade{}, fmt.Errorf("vault %s: %s: caller %s: %w", a.id, direction, caller.Hex(), domain.ErrNotAuthorized)
	}
	from, to, err := a.legs(direction)
	if err != nil {
		return domain.Trade{}, err
	}

	inventory := a.ledger.BalanceOf(from, a.addr)
	if inventory.Sign() <= 0 {
		return domain.Trade{}, fmt.Errorf("vault %s: %s: empty inventory: %w", a.id, direction, domain.ErrInvalidAmount)
	}
	swapAmount, tradeFee := ApplyBps(inventory, a.params.Fees.PctTradeFee)

	bound, err := a.slippageBoundLocked(ctx, direction, swapAmount)
	if err != nil {
		return domain.Trade{}, err
	}
	if quote.OutputAmount == nil || quote.OutputAmount.Cmp(bound) < 0 {
		return domain.Trade{}, fmt.Errorf("vault %s: %s: quote below slippage bound: %w", a.id, direction, domain.ErrSlippageExceeded)
	}

	out, err := a.executor.Swap(ctx, a.addr, from, to, swapAmount, quote.Payload)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("vault %s: %s: %w", a.id, direction, err)
	}

	if err := a.payFeeInReward(ctx, from, tradeFee, a.params.Fees.AddrUpbots); err != nil {
		return domain.Trade{}, fmt.Errorf("vault %s: trade fee: %w", a.id, err)
	}

	trade := domain.Trade{
		ID:         uuid.NewString(),
		VaultID:    a.id,
		Direction:  direction,
		Caller:     caller,
		AmountIn:   new(big.Int).Set(swapAmount),
		AmountOut:  new(big.Int).Set(out),
		TradeFee:   new(big.Int).Set(tradeFee),
		PerfFee:    new(big.Int),
		ExecutedAt: time.Now().UTC(),
	}

	if direction == domain.TradeBuy {
		a.position = domain.PositionOpen
		a.soldAmount = new(big.Int).Set(swapAmount)
	} else {
		perfFee, err := a.settleProfitLocked(ctx, out)
		if err != nil {
			return domain.Trade{}, err
		}
		trade.PerfFee = perfFee
		a.position = domain.PositionClosed
		a.soldAmount = new(big.Int)
	}
	trade.Profit = new(big.Int).Set(a.profit)

	a.logger.InfoContext(ctx, "trade settled",
		slog.String("direction", string(direction)),
		slog.String("amount_in", trade.AmountIn.String()),
		slog.String("amount_out", trade.AmountOut.String()),
		slog.String("profit", trade.Profit.String()),
	)
	a.sink.Emit(ctx, a.id, domain.TradeDoneEvent{
		Direction: direction,
		AmountIn:  new(big.Int).Set(trade.AmountIn),
		AmountOut: new(big.Int).Set(trade.AmountOut),
	})

	return trade, nil
}

// settleProfitLocked folds the sell proceeds into the running profit ratio.
// With proceeds out against the soldAmount that entered the position:
//
//	profit' = floor(profit * out / soldAmount)
//
// A ratio above breakeven realizes the excess as a performance fee base,
// distributes the configured shares, and resets the ratio to breakeven so
// fees are only ever taken above the high-water mark. A ratio at or below
// breakeven carries into the next cycle untouched.
func (a *Accounting) settleProfitLocked(ctx context.Context, out *big.Int) (*big.Int, error) {
	next := new(big.Int).Mul(a.profit, out)
	next.Quo(next, a.soldAmount)

	if next.Cmp(breakeven) <= 0 {
		a.profit = next
		return new(big.Int), nil
	}

	// profitAmount = out * (profit' - breakeven) / profit'
	excess := new(big.Int).Sub(next, breakeven)
	profitAmount := new(big.Int).Mul(out, excess)
	profitAmount.Quo(profitAmount, next)

	taken := new(big.Int)
	for _, share := range perfSplit(profitAmount, a.params.Fees, a.params.PerfPartnerFallback) {
		// The burning share is swapped to the reward asset and burned; the
		// rest go to their recipients the same way.
		if err := a.payFeeInReward(ctx, a.params.QuoteAsset, share.amount, share.recipient); err != nil {
			return nil, fmt.Errorf("perf fee: %w", err)
		}
		taken.Add(taken, share.amount)
	}

	a.profit = new(big.Int).Set(breakeven)
	return taken, nil
}

// payFeeInReward routes a fee slice to its recipient. When a reward asset is
// configured the slice is swapped into it through the router first; fee
// conversions take any execution price, the slippage gate only protects the
// pool's own inventory.
func (a *Accounting) payFeeInReward(ctx context.Context, src domain.Asset, amount *big.Int, recipient common.Address) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	reward := a.params.RewardAsset
	if reward.Address == (common.Address{}) || reward.Equal(src) {
		return a.ledger.TransferOut(ctx, src, a.addr, recipient, amount)
	}
	_, err := a.router.SwapExactIn(ctx, a.addr, src, reward, amount, new(big.Int), recipient)
	return err
}
