package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BpsDenom is the basis-point denominator: 10000 bps = 100%.
const BpsDenom = 10000

// Position is the vault inventory state. A closed vault holds only the quote
// asset; an open vault holds only the base asset. There are no partial
// positions in this model.
type Position string

const (
	PositionClosed Position = "closed"
	PositionOpen   Position = "open"
)

// TradeDirection classifies a settlement: buy enters a position
// (quote -> base), sell exits it (base -> quote).
type TradeDirection string

const (
	TradeBuy  TradeDirection = "buy"
	TradeSell TradeDirection = "sell"
)

// FeeParams holds every fee percentage (basis points) and recipient for one
// vault. Percentages within a single category must not sum past 10000; that
// is a configuration precondition, not checked at runtime.
type FeeParams struct {
	PctDeposit      int64
	PctWithdraw     int64
	PctPerfBurning  int64
	PctPerfStakers  int64
	PctPerfAlgoDev  int64
	PctPerfUpbots   int64
	PctPerfPartners int64
	PctTradeFee     int64

	AddrStakers common.Address
	AddrAlgoDev common.Address
	AddrUpbots  common.Address
	// AddrPartner may be the zero address, which disables the partner share.
	AddrPartner common.Address
}

// PartnerSet reports whether a partner fee recipient is configured.
func (f FeeParams) PartnerSet() bool {
	return f.AddrPartner != (common.Address{})
}

// VaultParams is the immutable per-vault configuration fixed at creation.
type VaultParams struct {
	Name       string
	QuoteAsset Asset
	BaseAsset  Asset
	// RewardAsset is the token trading and performance fees are converted
	// into before distribution (UBXN in the original deployment).
	RewardAsset Asset
	// SwapPath is the router path used when converting fees into the reward
	// asset.
	SwapPath []common.Address

	MaxCap *big.Int

	// Slippage bounds for the settlement gate, per direction.
	MaxSlippageBuyBps  int64
	MaxSlippageSellBps int64
	// ValuationHaircutBps discounts base inventory when valuing it in quote
	// terms and when converting a mismatched deposit.
	ValuationHaircutBps int64

	// PerfPartnerFallback decides what happens to the partner performance
	// share when AddrPartner is unset: "retain" leaves it in the pool,
	// "upbots" redirects it to AddrUpbots.
	PerfPartnerFallback string

	Fees FeeParams
}

// Trade is the realized record of one settled buy or sell.
type Trade struct {
	ID        string
	VaultID   string
	Direction TradeDirection
	Caller    common.Address
	AmountIn  *big.Int // source-asset amount actually swapped (net of trade fee)
	AmountOut *big.Int // destination-asset amount credited
	TradeFee  *big.Int // source-asset slice withheld before the swap
	PerfFee   *big.Int // quote-asset performance fee taken (sell only, profit only)
	Profit    *big.Int // running profit ratio after settlement (10000 = breakeven)
	ExecutedAt time.Time
}

// VaultState is a read-only snapshot of one vault's accounting state, used by
// the API surface and share snapshots.
type VaultState struct {
	ID          string
	Name        string
	Position    Position
	TotalShares *big.Int
	SoldAmount  *big.Int
	Profit      *big.Int
	PoolSize    *big.Int
	MaxCap      *big.Int
	TakenAt     time.Time
}
