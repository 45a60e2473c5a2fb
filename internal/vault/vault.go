package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// breakeven is the profit-ratio basis: 10000 means no profit or loss accrued
// since inception.
var breakeven = big.NewInt(domain.BpsDenom)

// Deps are the injected capabilities one vault operates through. All external
// effects (balances, prices, swaps, events) go through these; the engine holds
// no ambient state.
type Deps struct {
	Ledger    domain.TokenLedger
	QuoteFeed domain.PriceFeed
	BaseFeed  domain.PriceFeed
	Router    domain.SwapRouter
	Executor  domain.SwapExecutor
	Sink      domain.EventSink
	Logger    *slog.Logger
}

// Accounting is the reference accounting model for one vault instance. Every
// state-mutating operation is serialized by an internal mutex, mirroring the
// one-transaction-at-a-time substrate the model targets. Each call either
// fully applies or leaves prior state untouched.
type Accounting struct {
	mu sync.Mutex

	id     string
	addr   common.Address
	params domain.VaultParams

	owner      common.Address
	strategist common.Address
	whitelist  map[common.Address]bool

	position    domain.Position
	soldAmount  *big.Int
	profit      *big.Int
	totalShares *big.Int
	shares      map[common.Address]*big.Int

	ledger    domain.TokenLedger
	quoteFeed domain.PriceFeed
	baseFeed  domain.PriceFeed
	router    domain.SwapRouter
	executor  domain.SwapExecutor
	sink      domain.EventSink
	logger    *slog.Logger
}

type noopSink struct{}

func (noopSink) Emit(context.Context, string, domain.Event) {}

// New creates a vault accounting instance in the closed position with no
// shares outstanding and emits Initialized.
func New(id string, addr, owner, strategist common.Address, params domain.VaultParams, deps Deps) (*Accounting, error) {
	if params.MaxCap == nil || params.MaxCap.Sign() <= 0 {
		return nil, fmt.Errorf("vault %s: %w: max cap must be positive", id, domain.ErrInvalidAmount)
	}
	if deps.Ledger == nil || deps.QuoteFeed == nil || deps.BaseFeed == nil || deps.Router == nil || deps.Executor == nil {
		return nil, fmt.Errorf("vault %s: missing dependency", id)
	}
	if deps.Sink == nil {
		deps.Sink = noopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	a := &Accounting{
		id:          id,
		addr:        addr,
		params:      params,
		owner:       owner,
		strategist:  strategist,
		whitelist:   make(map[common.Address]bool),
		position:    domain.PositionClosed,
		soldAmount:  new(big.Int),
		profit:      new(big.Int).Set(breakeven),
		totalShares: new(big.Int),
		shares:      make(map[common.Address]*big.Int),
		ledger:      deps.Ledger,
		quoteFeed:   deps.QuoteFeed,
		baseFeed:    deps.BaseFeed,
		router:      deps.Router,
		executor:    deps.Executor,
		sink:        deps.Sink,
		logger:      deps.Logger.With(slog.String("component", "vault"), slog.String("vault_id", id)),
	}

	a.sink.Emit(context.Background(), id, domain.InitializedEvent{
		Name:       params.Name,
		QuoteAsset: params.QuoteAsset.String(),
		BaseAsset:  params.BaseAsset.String(),
		MaxCap:     new(big.Int).Set(params.MaxCap),
	})

	return a, nil
}

// ID returns the vault identifier.
func (a *Accounting) ID() string { return a.id }

// Address returns the vault's ledger account.
func (a *Accounting) Address() common.Address { return a.addr }

// Params returns the vault's immutable configuration.
func (a *Accounting) Params() domain.VaultParams { return a.params }

// depositFeeRecipient is where deposit and withdraw fees go: the partner when
// configured, otherwise the upbots treasury.
func (a *Accounting) depositFeeRecipient() common.Address {
	if a.params.Fees.PartnerSet() {
		return a.params.Fees.AddrPartner
	}
	return a.params.Fees.AddrUpbots
}

// positionAsset returns the asset the vault's inventory is currently held in.
func (a *Accounting) positionAsset() domain.Asset {
	if a.position == domain.PositionOpen {
		return a.params.BaseAsset
	}
	return a.params.QuoteAsset
}

// feeds fetches both price feed observations.
func (a *Accounting) feeds(ctx context.Context) (qp, bp domain.PricePoint, err error) {
	qp, err = a.quoteFeed.Latest(ctx)
	if err != nil {
		return qp, bp, fmt.Errorf("vault %s: quote feed: %w", a.id, err)
	}
	bp, err = a.baseFeed.Latest(ctx)
	if err != nil {
		return qp, bp, fmt.Errorf("vault %s: base feed: %w", a.id, err)
	}
	return qp, bp, nil
}

// poolSizeLocked values current inventory in quote terms. Base inventory is
// valued at the feed rate less the configured haircut. Callers hold the lock.
func (a *Accounting) poolSizeLocked(ctx context.Context) (*big.Int, error) {
	total := a.ledger.BalanceOf(a.params.QuoteAsset, a.addr)

	baseBal := a.ledger.BalanceOf(a.params.BaseAsset, a.addr)
	if baseBal.Sign() > 0 {
		qp, bp, err := a.feeds(ctx)
		if err != nil {
			return nil, err
		}
		baseVal := feedConvert(baseBal, a.params.BaseAsset, a.params.QuoteAsset, bp, qp)
		total.Add(total, applyHaircut(baseVal, a.params.ValuationHaircutBps))
	}

	return total, nil
}

// DepositQuote deposits amount of the quote asset. The deposit fee is taken
// off the top and paid out immediately; the remainder joins the pool, being
// converted to the base asset first when the vault is in an open position.
// Shares are minted against the pool measured before the contribution lands.
func (a *Accounting) DepositQuote(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	return a.deposit(ctx, caller, a.params.QuoteAsset, amount)
}

// DepositBase deposits amount of the base asset, converting to quote first
// when the vault is in the closed position.
func (a *Accounting) DepositBase(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	return a.deposit(ctx, caller, a.params.BaseAsset, amount)
}

func (a *Accounting) deposit(ctx context.Context, caller common.Address, asset domain.Asset, amount *big.Int) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("vault %s: deposit: %w", a.id, domain.ErrInvalidAmount)
	}

	qp, bp, err := a.feeds(ctx)
	if err != nil {
		return nil, err
	}

	// Max cap gate on the gross deposit value, before any state changes.
	poolValue, err := a.poolSizeLocked(ctx)
	if err != nil {
		return nil, err
	}
	grossValue := new(big.Int).Set(amount)
	if asset.Equal(a.params.BaseAsset) {
		grossValue = applyHaircut(feedConvert(amount, a.params.BaseAsset, a.params.QuoteAsset, bp, qp), a.params.ValuationHaircutBps)
	}
	if new(big.Int).Add(poolValue, grossValue).Cmp(a.params.MaxCap) > 0 {
		return nil, fmt.Errorf("vault %s: deposit %s: %w", a.id, asset, domain.ErrMaxCapExceeded)
	}

	net, fee := ApplyBps(amount, a.params.Fees.PctDeposit)

	// Pool measured in position-asset units before this contribution lands.
	posAsset := a.positionAsset()
	poolBefore := a.ledger.BalanceOf(posAsset, a.addr)

	if err := a.ledger.TransferIn(ctx, asset, caller, a.addr, amount); err != nil {
		return nil, fmt.Errorf("vault %s: deposit %s: %w", a.id, asset, err)
	}

	// A deposit in the opposite asset converts through the router at the
	// feed rate less the haircut. The conversion runs before the fee
	// payout: if the fill lands under minOut the full pull is still in the
	// deposited asset and is refunded, leaving the caller whole.
	contribution := net
	if !asset.Equal(posAsset) {
		var expected *big.Int
		if asset.Equal(a.params.QuoteAsset) {
			expected = feedConvert(net, a.params.QuoteAsset, a.params.BaseAsset, qp, bp)
		} else {
			expected = feedConvert(net, a.params.BaseAsset, a.params.QuoteAsset, bp, qp)
		}
		minOut := applyHaircut(expected, a.params.ValuationHaircutBps)
		out, err := a.router.SwapExactIn(ctx, a.addr, asset, posAsset, net, minOut, a.addr)
		if err != nil {
			if rbErr := a.ledger.TransferOut(ctx, asset, a.addr, caller, amount); rbErr != nil {
				return nil, fmt.Errorf("vault %s: deposit conversion: %w (refund: %v)", a.id, err, rbErr)
			}
			return nil, fmt.Errorf("vault %s: deposit conversion: %w", a.id, err)
		}
		contribution = out
	}

	if fee.Sign() > 0 {
		if err := a.ledger.TransferOut(ctx, asset, a.addr, a.depositFeeRecipient(), fee); err != nil {
			return nil, fmt.Errorf("vault %s: deposit fee: %w", a.id, err)
		}
	}

	minted := a.mintLocked(caller, contribution, poolBefore)

	a.logger.InfoContext(ctx, "deposit settled",
		slog.String("depositor", caller.Hex()),
		slog.String("asset", asset.String()),
		slog.String("amount", amount.String()),
		slog.String("shares", minted.String()),
	)
	a.sink.Emit(ctx, a.id, domain.DepositedEvent{
		Depositor:    caller,
		Asset:        asset.String(),
		Amount:       new(big.Int).Set(amount),
		SharesMinted: new(big.Int).Set(minted),
	})

	return minted, nil
}

// mintLocked applies the constant-ratio share-minting rule. The first
// depositor sets a 1:1 basis against the contribution in position-asset
// units; later depositors mint pro rata against the pool measured before
// their contribution.
func (a *Accounting) mintLocked(caller common.Address, contribution, poolBefore *big.Int) *big.Int {
	var minted *big.Int
	if a.totalShares.Sign() == 0 {
		minted = new(big.Int).Set(contribution)
	} else {
		minted = new(big.Int).Mul(contribution, a.totalShares)
		minted.Quo(minted, poolBefore)
	}

	bal, ok := a.shares[caller]
	if !ok {
		bal = new(big.Int)
		a.shares[caller] = bal
	}
	bal.Add(bal, minted)
	a.totalShares.Add(a.totalShares, minted)
	return minted
}

// burnLocked removes shares from the caller, deleting empty entries.
func (a *Accounting) burnLocked(caller common.Address, shares *big.Int) {
	bal := a.shares[caller]
	bal.Sub(bal, shares)
	if bal.Sign() == 0 {
		delete(a.shares, caller)
	}
	a.totalShares.Sub(a.totalShares, shares)
}

// Withdraw burns shares and pays out the proportional inventory in the
// vault's current position asset, less the withdraw fee.
func (a *Accounting) Withdraw(ctx context.Context, caller common.Address, shares *big.Int) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.withdrawLocked(ctx, caller, shares, false)
}

// WithdrawQuote is Withdraw with the payout converted to the quote asset
// when the vault is in an open position.
func (a *Accounting) WithdrawQuote(ctx context.Context, caller common.Address, shares *big.Int) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.withdrawLocked(ctx, caller, shares, true)
}

func (a *Accounting) withdrawLocked(ctx context.Context, caller common.Address, shares *big.Int, inQuote bool) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, fmt.Errorf("vault %s: withdraw: %w", a.id, domain.ErrInvalidAmount)
	}
	bal, ok := a.shares[caller]
	if !ok || shares.Cmp(bal) > 0 {
		return nil, fmt.Errorf("vault %s: withdraw: %w", a.id, domain.ErrInsufficientShares)
	}

	posAsset := a.positionAsset()
	poolAmount := a.ledger.BalanceOf(posAsset, a.addr)

	value := new(big.Int).Mul(poolAmount, shares)
	value.Quo(value, a.totalShares)

	payAsset := posAsset
	if inQuote && a.position == domain.PositionOpen {
		qp, bp, err := a.feeds(ctx)
		if err != nil {
			return nil, err
		}
		expected := feedConvert(value, a.params.BaseAsset, a.params.QuoteAsset, bp, qp)
		minOut := applyHaircut(expected, a.params.ValuationHaircutBps)
		out, err := a.router.SwapExactIn(ctx, a.addr, a.params.BaseAsset, a.params.QuoteAsset, value, minOut, a.addr)
		if err != nil {
			return nil, fmt.Errorf("vault %s: withdraw conversion: %w", a.id, err)
		}
		value = out
		payAsset = a.params.QuoteAsset
	}

	net, fee := ApplyBps(value, a.params.Fees.PctWithdraw)
	if fee.Sign() > 0 {
		if err := a.ledger.TransferOut(ctx, payAsset, a.addr, a.depositFeeRecipient(), fee); err != nil {
			return nil, fmt.Errorf("vault %s: withdraw fee: %w", a.id, err)
		}
	}
	if err := a.ledger.TransferOut(ctx, payAsset, a.addr, caller, net); err != nil {
		return nil, fmt.Errorf("vault %s: withdraw: %w", a.id, err)
	}

	a.burnLocked(caller, shares)

	a.logger.InfoContext(ctx, "withdraw settled",
		slog.String("withdrawer", caller.Hex()),
		slog.String("asset", payAsset.String()),
		slog.String("amount", net.String()),
		slog.String("shares", shares.String()),
	)
	a.sink.Emit(ctx, a.id, domain.WithdrawnEvent{
		Withdrawer:   caller,
		Asset:        payAsset.String(),
		Amount:       new(big.Int).Set(net),
		SharesBurned: new(big.Int).Set(shares),
	})

	return net, nil
}

// EstimatedPoolSize returns current inventory valued in quote terms.
func (a *Accounting) EstimatedPoolSize(ctx context.Context) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.poolSizeLocked(ctx)
}

// EstimatedDeposit returns the proportional quote value of addr's shares.
func (a *Accounting) EstimatedDeposit(ctx context.Context, addr common.Address) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bal, ok := a.shares[addr]
	if !ok || a.totalShares.Sign() == 0 {
		return new(big.Int), nil
	}
	pool, err := a.poolSizeLocked(ctx)
	if err != nil {
		return nil, err
	}
	val := new(big.Int).Mul(pool, bal)
	return val.Quo(val, a.totalShares), nil
}

// Profit returns the running profit ratio (10000 = breakeven).
func (a *Accounting) Profit() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.profit)
}

// Position returns the current position state.
func (a *Accounting) Position() domain.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// SoldAmount returns the quote amount sold to enter the current open
// position; zero while closed.
func (a *Accounting) SoldAmount() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.soldAmount)
}

// SharesOf returns addr's share balance.
func (a *Accounting) SharesOf(addr common.Address) *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if bal, ok := a.shares[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalShares returns the outstanding share supply.
func (a *Accounting) TotalShares() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.totalShares)
}

// State captures a consistent snapshot of the vault for the API surface.
func (a *Accounting) State(ctx context.Context) (domain.VaultState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pool, err := a.poolSizeLocked(ctx)
	if err != nil {
		return domain.VaultState{}, err
	}
	return domain.VaultState{
		ID:          a.id,
		Name:        a.params.Name,
		Position:    a.position,
		TotalShares: new(big.Int).Set(a.totalShares),
		SoldAmount:  new(big.Int).Set(a.soldAmount),
		Profit:      new(big.Int).Set(a.profit),
		PoolSize:    pool,
		MaxCap:      new(big.Int).Set(a.params.MaxCap),
	}, nil
}
