package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Quote is an aggregator quote for a single swap. Payload is opaque execution
// data forwarded verbatim to the settlement call; the accounting core only
// ever validates OutputAmount against the slippage bound.
type Quote struct {
	OutputAmount *big.Int
	Payload      []byte
}

// Quoter is the external aggregator oracle (0x / 1inch style). Quotes are
// idempotent blocking reads with no side effects; they may be stale by the
// time they are used, which is what the settlement slippage gate defends
// against.
type Quoter interface {
	Quote(ctx context.Context, from, to Asset, amount *big.Int) (Quote, error)
}

// PricePoint is one observation from a price feed. Price is fixed-point with
// the feed's own decimal precision (8 for the Chainlink feeds observed).
type PricePoint struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// PriceFeed is a Chainlink-style price oracle for a single asset. It is used
// for valuation and slippage bounds only, never for realized accounting state.
type PriceFeed interface {
	Latest(ctx context.Context) (PricePoint, error)
}

// SwapExecutor applies an aggregator swap previously quoted by a Quoter.
// Implementations debit amountIn of from and credit the realized output of to
// against the caller's ledger account. The payload is the Quote.Payload,
// uninterpreted.
type SwapExecutor interface {
	Swap(ctx context.Context, owner common.Address, from, to Asset, amountIn *big.Int, payload []byte) (*big.Int, error)
}

// SwapRouter is the auxiliary swap path (Uniswap-style) used for fee
// conversion into the reward asset and for converting mismatched deposits.
// The realized output is credited to recipient.
type SwapRouter interface {
	SwapExactIn(ctx context.Context, owner common.Address, from, to Asset, amountIn, minOut *big.Int, recipient common.Address) (*big.Int, error)
}
