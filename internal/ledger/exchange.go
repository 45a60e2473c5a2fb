package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// Exchange is a deterministic swap venue over a Bank. Every pair trades at
// the ratio of the configured per-asset prices, scaled by ExecBps to model
// execution above or below the oracle rate (10000 = exactly at oracle).
// Exchange implements domain.SwapExecutor, domain.SwapRouter, and
// domain.Quoter, so one instance can stand in for the aggregator and the
// auxiliary router at once.
type Exchange struct {
	mu      sync.RWMutex
	bank    *Bank
	prices  map[common.Address]domain.PricePoint
	execBps int64
}

var (
	_ domain.SwapExecutor = (*Exchange)(nil)
	_ domain.SwapRouter   = (*Exchange)(nil)
	_ domain.Quoter       = (*Exchange)(nil)
)

// NewExchange returns an exchange executing exactly at the configured prices.
func NewExchange(bank *Bank) *Exchange {
	return &Exchange{
		bank:    bank,
		prices:  make(map[common.Address]domain.PricePoint),
		execBps: domain.BpsDenom,
	}
}

// SetPrice fixes the exchange-side price for one asset.
func (e *Exchange) SetPrice(asset domain.Asset, p domain.PricePoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[asset.Address] = p
}

// SetExecBps scales every execution relative to the oracle rate: 9900 fills
// 1% under, 10100 fills 1% over.
func (e *Exchange) SetExecBps(bps int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execBps = bps
}

// rate computes the output for amountIn at the configured prices, normalizing
// both feed and token decimals, then applies the execution scale.
func (e *Exchange) rate(from, to domain.Asset, amountIn *big.Int) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fp, ok := e.prices[from.Address]
	if !ok {
		return nil, fmt.Errorf("exchange: no price for %s: %w", from, domain.ErrNotFound)
	}
	tp, ok := e.prices[to.Address]
	if !ok {
		return nil, fmt.Errorf("exchange: no price for %s: %w", to, domain.ErrNotFound)
	}

	ten := big.NewInt(10)
	num := new(big.Int).Mul(amountIn, fp.Price)
	num.Mul(num, new(big.Int).Exp(ten, big.NewInt(int64(to.Decimals)+int64(tp.Decimals)), nil))
	den := new(big.Int).Mul(tp.Price, new(big.Int).Exp(ten, big.NewInt(int64(from.Decimals)+int64(fp.Decimals)), nil))
	out := num.Quo(num, den)

	out.Mul(out, big.NewInt(e.execBps))
	return out.Quo(out, big.NewInt(domain.BpsDenom)), nil
}

// Quote prices amountIn of from into to at the current execution rate.
func (e *Exchange) Quote(_ context.Context, from, to domain.Asset, amount *big.Int) (domain.Quote, error) {
	out, err := e.rate(from, to, amount)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{OutputAmount: out}, nil
}

// Swap executes a previously quoted swap for owner: amountIn of from is
// debited and the realized output of to is credited back to owner.
func (e *Exchange) Swap(ctx context.Context, owner common.Address, from, to domain.Asset, amountIn *big.Int, _ []byte) (*big.Int, error) {
	return e.fill(ctx, owner, from, to, amountIn, nil, owner)
}

// SwapExactIn executes a router swap, crediting the output to recipient and
// failing when the fill lands under minOut.
func (e *Exchange) SwapExactIn(ctx context.Context, owner common.Address, from, to domain.Asset, amountIn, minOut *big.Int, recipient common.Address) (*big.Int, error) {
	return e.fill(ctx, owner, from, to, amountIn, minOut, recipient)
}

func (e *Exchange) fill(ctx context.Context, owner common.Address, from, to domain.Asset, amountIn, minOut *big.Int, recipient common.Address) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("exchange: %w", domain.ErrInvalidAmount)
	}
	out, err := e.rate(from, to, amountIn)
	if err != nil {
		return nil, err
	}
	if minOut != nil && minOut.Sign() > 0 && out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("exchange: fill %s under minimum %s: %w", out, minOut, domain.ErrSlippageExceeded)
	}

	if err := e.bank.TransferOut(ctx, from, owner, exchangeReserve, amountIn); err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	e.bank.Mint(to, recipient, out)
	return out, nil
}

// exchangeReserve absorbs swapped-in tokens; output legs are minted, so the
// venue never runs out of inventory.
var exchangeReserve = common.HexToAddress("0x00000000000000000000000000000000000Ec0de")
