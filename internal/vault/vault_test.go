package vault

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/ledger"
	"github.com/upvault/vaultd/internal/oracle"
)

var (
	addrOwner      = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	addrStrategist = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	addrVault      = common.HexToAddress("0x0000000000000000000000000000000000000A03")
	addrAlice      = common.HexToAddress("0x0000000000000000000000000000000000000B01")
	addrBob        = common.HexToAddress("0x0000000000000000000000000000000000000B02")
	addrCarol      = common.HexToAddress("0x0000000000000000000000000000000000000B03")
	addrStakers    = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	addrAlgoDev    = common.HexToAddress("0x0000000000000000000000000000000000000C02")
	addrUpbots     = common.HexToAddress("0x0000000000000000000000000000000000000C03")
	addrPartner    = common.HexToAddress("0x0000000000000000000000000000000000000C04")

	assetDAI  = domain.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000000D01"), Symbol: "DAI", Decimals: 18}
	assetWETH = domain.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000000D02"), Symbol: "WETH", Decimals: 18}
	assetUBXN = domain.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000000D03"), Symbol: "UBXN", Decimals: 18}
)

func e18(x int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(x), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func e8(x int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(x), big.NewInt(1e8))
}

type fixture struct {
	bank      *ledger.Bank
	ex        *ledger.Exchange
	quoteFeed *oracle.Fixed
	baseFeed  *oracle.Fixed
	vault     *Accounting
}

func testFees(withPartner bool) domain.FeeParams {
	fees := domain.FeeParams{
		PctDeposit:      45,
		PctWithdraw:     100,
		PctPerfBurning:  250,
		PctPerfStakers:  250,
		PctPerfAlgoDev:  500,
		PctPerfUpbots:   500,
		PctPerfPartners: 1000,
		PctTradeFee:     8,
		AddrStakers:     addrStakers,
		AddrAlgoDev:     addrAlgoDev,
		AddrUpbots:      addrUpbots,
	}
	if withPartner {
		fees.AddrPartner = addrPartner
	}
	return fees
}

func newFixture(t *testing.T, withPartner bool) *fixture {
	t.Helper()

	bank := ledger.NewBank()
	ex := ledger.NewExchange(bank)
	ex.SetPrice(assetDAI, domain.PricePoint{Price: e8(1), Decimals: 8})
	ex.SetPrice(assetWETH, domain.PricePoint{Price: e8(1200), Decimals: 8})
	ex.SetPrice(assetUBXN, domain.PricePoint{Price: e8(1), Decimals: 8})

	quoteFeed := oracle.NewFixed(e8(1), 8)
	baseFeed := oracle.NewFixed(e8(1200), 8)

	params := domain.VaultParams{
		Name:                "dai-weth",
		QuoteAsset:          assetDAI,
		BaseAsset:           assetWETH,
		RewardAsset:         assetUBXN,
		MaxCap:              e18(1_000_000),
		MaxSlippageBuyBps:   150,
		MaxSlippageSellBps:  500,
		ValuationHaircutBps: 150,
		PerfPartnerFallback: "retain",
		Fees:                testFees(withPartner),
	}

	v, err := New("v1", addrVault, addrOwner, addrStrategist, params, Deps{
		Ledger:    bank,
		QuoteFeed: quoteFeed,
		BaseFeed:  baseFeed,
		Router:    ex,
		Executor:  ex,
		Sink:      nil,
	})
	require.NoError(t, err)
	require.NoError(t, v.AddToWhiteList(context.Background(), addrStrategist, addrStrategist))

	return &fixture{bank: bank, ex: ex, quoteFeed: quoteFeed, baseFeed: baseFeed, vault: v}
}

func (f *fixture) depositQuote(t *testing.T, who common.Address, amount *big.Int) *big.Int {
	t.Helper()
	ctx := context.Background()
	f.bank.Mint(assetDAI, who, amount)
	require.NoError(t, f.bank.Approve(ctx, assetDAI, who, addrVault, amount))
	shares, err := f.vault.DepositQuote(ctx, who, amount)
	require.NoError(t, err)
	return shares
}

// quoteFor builds a settlement quote by asking the exchange at its current
// execution rate, the way the aggregator client would.
func (f *fixture) quoteFor(t *testing.T, direction domain.TradeDirection) domain.Quote {
	t.Helper()
	swapAmount, err := f.vault.NextSwapAmount(direction)
	require.NoError(t, err)
	from, to := assetDAI, assetWETH
	if direction == domain.TradeSell {
		from, to = assetWETH, assetDAI
	}
	q, err := f.ex.Quote(context.Background(), from, to, swapAmount)
	require.NoError(t, err)
	return q
}

func TestDepositSharesAreProportional(t *testing.T) {
	f := newFixture(t, false)

	s1 := f.depositQuote(t, addrAlice, e18(10_000))
	s2 := f.depositQuote(t, addrBob, e18(20_000))
	s3 := f.depositQuote(t, addrCarol, e18(30_000))

	// 45 bps off the top; the first depositor mints 1:1 against net value.
	assert.Equal(t, e18(9_955), s1)
	assert.Equal(t, e18(19_910), s2)
	assert.Equal(t, e18(29_865), s3)

	total := new(big.Int).Add(s1, new(big.Int).Add(s2, s3))
	assert.Equal(t, total, f.vault.TotalShares())

	// Equal pool, so alice : bob : carol value 1 : 2 : 3.
	va, err := f.vault.EstimatedDeposit(context.Background(), addrAlice)
	require.NoError(t, err)
	vb, err := f.vault.EstimatedDeposit(context.Background(), addrBob)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(va, big.NewInt(2)), vb)
}

func TestDepositFeePaidImmediately(t *testing.T) {
	t.Run("no partner pays upbots", func(t *testing.T) {
		f := newFixture(t, false)
		f.depositQuote(t, addrAlice, e18(10_000))
		assert.Equal(t, e18(45), f.bank.BalanceOf(assetDAI, addrUpbots))
		assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, addrPartner))
	})
	t.Run("partner set pays partner", func(t *testing.T) {
		f := newFixture(t, true)
		f.depositQuote(t, addrAlice, e18(10_000))
		assert.Equal(t, e18(45), f.bank.BalanceOf(assetDAI, addrPartner))
		assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, addrUpbots))
	})
}

func TestDepositRejectsPastMaxCap(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	over := new(big.Int).Add(e18(1_000_000), big.NewInt(1))
	f.bank.Mint(assetDAI, addrAlice, over)
	require.NoError(t, f.bank.Approve(ctx, assetDAI, addrAlice, addrVault, over))

	_, err := f.vault.DepositQuote(ctx, addrAlice, over)
	require.ErrorIs(t, err, domain.ErrMaxCapExceeded)

	// Rejected atomically: nothing moved, nothing minted.
	assert.Equal(t, over, f.bank.BalanceOf(assetDAI, addrAlice))
	assert.Equal(t, new(big.Int), f.vault.TotalShares())

	// The cap gates the gross amount, before the deposit fee.
	f.depositQuote(t, addrAlice, e18(1_000_000))
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.vault.DepositQuote(context.Background(), addrAlice, big.NewInt(0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	shares := f.depositQuote(t, addrAlice, e18(10_000))
	got, err := f.vault.Withdraw(ctx, addrAlice, shares)
	require.NoError(t, err)

	// Net of 45 bps in and 100 bps out.
	net, _ := ApplyBps(e18(9_955), 100)
	assert.Equal(t, net, got)
	assert.Equal(t, net, f.bank.BalanceOf(assetDAI, addrAlice))
	assert.Equal(t, new(big.Int), f.vault.TotalShares())
	assert.Equal(t, new(big.Int), f.vault.SharesOf(addrAlice))
}

func TestWithdrawMoreThanHeld(t *testing.T) {
	f := newFixture(t, false)
	shares := f.depositQuote(t, addrAlice, e18(10_000))

	over := new(big.Int).Add(shares, big.NewInt(1))
	_, err := f.vault.Withdraw(context.Background(), addrAlice, over)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = f.vault.Withdraw(context.Background(), addrBob, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestBuyOpensPosition(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.depositQuote(t, addrAlice, e18(10_000))
	inventory := f.bank.BalanceOf(assetDAI, addrVault)

	trade, err := f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	wantSwap, wantFee := ApplyBps(inventory, 8)
	assert.Equal(t, wantSwap, trade.AmountIn)
	assert.Equal(t, wantFee, trade.TradeFee)
	assert.Equal(t, domain.PositionOpen, f.vault.Position())
	assert.Equal(t, wantSwap, f.vault.SoldAmount())

	// All quote inventory left the vault; the proceeds are base.
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, addrVault))
	assert.Equal(t, trade.AmountOut, f.bank.BalanceOf(assetWETH, addrVault))

	// The trade fee arrives at upbots converted to the reward asset.
	assert.Positive(t, f.bank.BalanceOf(assetUBXN, addrUpbots).Sign())
}

func TestSettlementAuthorization(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.depositQuote(t, addrAlice, e18(10_000))

	_, err := f.vault.Buy(ctx, addrAlice, f.quoteFor(t, domain.TradeBuy))
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, f.vault.AddToWhiteList(ctx, addrStrategist, addrAlice))
	_, err = f.vault.Buy(ctx, addrAlice, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	require.NoError(t, f.vault.RemoveFromWhiteList(ctx, addrStrategist, addrAlice))
	_, err = f.vault.Sell(ctx, addrAlice, f.quoteFor(t, domain.TradeSell))
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestSettlementPositionStateMachine(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.depositQuote(t, addrAlice, e18(10_000))

	// Sell from closed is rejected.
	_, err := f.vault.Sell(ctx, addrStrategist, domain.Quote{OutputAmount: e18(1)})
	require.ErrorIs(t, err, domain.ErrWrongPositionState)

	_, err = f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	// Buy from open is rejected.
	_, err = f.vault.Buy(ctx, addrStrategist, domain.Quote{OutputAmount: e18(1)})
	require.ErrorIs(t, err, domain.ErrWrongPositionState)

	_, err = f.vault.Sell(ctx, addrStrategist, f.quoteFor(t, domain.TradeSell))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, f.vault.Position())
	assert.Equal(t, new(big.Int), f.vault.SoldAmount())
}

func TestBuySlippageGate(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.depositQuote(t, addrAlice, e18(12_000))

	swapAmount, err := f.vault.NextSwapAmount(domain.TradeBuy)
	require.NoError(t, err)
	qp, _ := f.quoteFeed.Latest(ctx)
	bp, _ := f.baseFeed.Latest(ctx)
	expected := feedConvert(swapAmount, assetDAI, assetWETH, qp, bp)
	bound := applyHaircut(expected, 150)

	// Exactly at the 150 bps bound passes.
	_, err = f.vault.Buy(ctx, addrStrategist, domain.Quote{OutputAmount: bound})
	require.NoError(t, err)
	_, err = f.vault.Sell(ctx, addrStrategist, f.quoteFor(t, domain.TradeSell))
	require.NoError(t, err)

	// One unit under fails and the position stays closed.
	swapAmount, err = f.vault.NextSwapAmount(domain.TradeBuy)
	require.NoError(t, err)
	expected = feedConvert(swapAmount, assetDAI, assetWETH, qp, bp)
	bound = applyHaircut(expected, 150)
	under := new(big.Int).Sub(bound, big.NewInt(1))
	_, err = f.vault.Buy(ctx, addrStrategist, domain.Quote{OutputAmount: under})
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)
	assert.Equal(t, domain.PositionClosed, f.vault.Position())
}

func TestSellSlippageGate(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.depositQuote(t, addrAlice, e18(12_000))
	_, err := f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	swapAmount, err := f.vault.NextSwapAmount(domain.TradeSell)
	require.NoError(t, err)
	qp, _ := f.quoteFeed.Latest(ctx)
	bp, _ := f.baseFeed.Latest(ctx)
	expected := feedConvert(swapAmount, assetWETH, assetDAI, bp, qp)

	// A 4% adverse quote clears the 500 bps sell bound; 6% does not.
	fourOff := applyHaircut(expected, 400)
	sixOff := applyHaircut(expected, 600)

	_, err = f.vault.Sell(ctx, addrStrategist, domain.Quote{OutputAmount: sixOff})
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)
	assert.Equal(t, domain.PositionOpen, f.vault.Position())

	_, err = f.vault.Sell(ctx, addrStrategist, domain.Quote{OutputAmount: fourOff})
	require.NoError(t, err)
}

// runCycle buys at buyPrice and sells at sellPrice, returning the sell trade.
func (f *fixture) runCycle(t *testing.T, buyPrice, sellPrice int64) domain.Trade {
	t.Helper()
	ctx := context.Background()

	f.baseFeed.Set(e8(buyPrice), 8)
	f.ex.SetPrice(assetWETH, domain.PricePoint{Price: e8(buyPrice), Decimals: 8})
	_, err := f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	f.baseFeed.Set(e8(sellPrice), 8)
	f.ex.SetPrice(assetWETH, domain.PricePoint{Price: e8(sellPrice), Decimals: 8})
	trade, err := f.vault.Sell(ctx, addrStrategist, f.quoteFor(t, domain.TradeSell))
	require.NoError(t, err)
	return trade
}

func TestProfitTrackingAcrossCycles(t *testing.T) {
	f := newFixture(t, false)
	f.depositQuote(t, addrAlice, e18(100_000))

	// Losing cycle: ratio drops below breakeven, no performance fee.
	trade := f.runCycle(t, 1200, 1150)
	require.Equal(t, 0, trade.PerfFee.Sign())
	p1 := f.vault.Profit()
	assert.Negative(t, p1.Cmp(big.NewInt(10_000)))

	// Deeper loss compounds on the carried ratio.
	trade = f.runCycle(t, 1100, 900)
	require.Equal(t, 0, trade.PerfFee.Sign())
	p2 := f.vault.Profit()
	assert.Negative(t, p2.Cmp(p1))

	// A winning cycle that does not clear the high-water mark still pays
	// nothing.
	trade = f.runCycle(t, 800, 1000)
	require.Equal(t, 0, trade.PerfFee.Sign())
	p3 := f.vault.Profit()
	assert.Positive(t, p3.Cmp(p2))
	assert.Negative(t, p3.Cmp(big.NewInt(10_000)))

	// Clearing the mark pays performance fees and resets to breakeven.
	trade = f.runCycle(t, 1100, 1500)
	assert.Positive(t, trade.PerfFee.Sign())
	assert.Equal(t, big.NewInt(10_000), f.vault.Profit())

	// Stakers, algo dev, upbots, and the burn address all received their
	// cut in the reward asset.
	for _, addr := range []common.Address{addrStakers, addrAlgoDev, addrUpbots, BurnAddress} {
		assert.Positive(t, f.bank.BalanceOf(assetUBXN, addr).Sign(), addr.Hex())
	}
	// No partner configured and fallback is retain: nothing for the partner.
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetUBXN, addrPartner))
}

func TestProfitRatioArithmetic(t *testing.T) {
	f := newFixture(t, false)
	f.depositQuote(t, addrAlice, e18(100_000))

	sold, err := f.vault.NextSwapAmount(domain.TradeBuy)
	require.NoError(t, err)
	trade := f.runCycle(t, 1200, 1150)

	// profit' = floor(10000 * proceeds / soldAmount)
	want := new(big.Int).Mul(big.NewInt(10_000), trade.AmountOut)
	want.Quo(want, sold)
	assert.Equal(t, want, f.vault.Profit())
}

func TestPerfFeeSplit(t *testing.T) {
	profit := big.NewInt(1_000_000)

	t.Run("partner set", func(t *testing.T) {
		shares := perfSplit(profit, testFees(true), "retain")
		require.Len(t, shares, 5)
		total := new(big.Int)
		for _, s := range shares {
			total.Add(total, s.amount)
		}
		// 250+250+500+500+1000 bps = 25% of the base.
		assert.Equal(t, big.NewInt(250_000), total)
		assert.Equal(t, BurnAddress, shares[0].recipient)
		assert.Equal(t, big.NewInt(25_000), shares[0].amount)
		assert.Equal(t, addrPartner, shares[4].recipient)
		assert.Equal(t, big.NewInt(100_000), shares[4].amount)
	})

	t.Run("partner unset retained", func(t *testing.T) {
		shares := perfSplit(profit, testFees(false), "retain")
		require.Len(t, shares, 4)
	})

	t.Run("partner unset redirected", func(t *testing.T) {
		shares := perfSplit(profit, testFees(false), "upbots")
		require.Len(t, shares, 5)
		assert.Equal(t, addrUpbots, shares[4].recipient)
		assert.Equal(t, big.NewInt(100_000), shares[4].amount)
	})
}

func TestPoolSizeHaircutWhileOpen(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.depositQuote(t, addrAlice, e18(10_000))

	_, err := f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	baseBal := f.bank.BalanceOf(assetWETH, addrVault)
	qp, _ := f.quoteFeed.Latest(ctx)
	bp, _ := f.baseFeed.Latest(ctx)
	want := applyHaircut(feedConvert(baseBal, assetWETH, assetDAI, bp, qp), 150)

	got, err := f.vault.EstimatedPoolSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDepositWhileOpenConverts(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.depositQuote(t, addrAlice, e18(10_000))
	_, err := f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	aliceShares := f.vault.SharesOf(addrAlice)
	bobShares := f.depositQuote(t, addrBob, e18(10_000))
	assert.Positive(t, bobShares.Sign())

	// The pool already paid the buy-side trade fee, so the same net value
	// mints slightly more shares than alice got.
	assert.Positive(t, bobShares.Cmp(aliceShares))
	// No quote inventory accumulates while the position is open.
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, addrVault))
}

func TestDepositConversionFailureRefunds(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.depositQuote(t, addrAlice, e18(10_000))
	_, err := f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	sharesBefore := f.vault.TotalShares()
	feeBefore := f.bank.BalanceOf(assetDAI, addrUpbots)

	// Fills land 10% under the oracle rate, far below the 150 bps haircut
	// bound, so the deposit conversion cannot clear.
	f.ex.SetExecBps(9_000)

	f.bank.Mint(assetDAI, addrBob, e18(10_000))
	require.NoError(t, f.bank.Approve(ctx, assetDAI, addrBob, addrVault, e18(10_000)))
	_, err = f.vault.DepositQuote(ctx, addrBob, e18(10_000))
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// The failed deposit is rolled back whole: the pull is refunded, no
	// fee left the vault, and no shares were minted.
	assert.Equal(t, e18(10_000), f.bank.BalanceOf(assetDAI, addrBob))
	assert.Equal(t, feeBefore, f.bank.BalanceOf(assetDAI, addrUpbots))
	assert.Equal(t, sharesBefore, f.vault.TotalShares())
	assert.Equal(t, new(big.Int), f.vault.SharesOf(addrBob))
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, addrVault))
}

func TestFirstDepositBaseMintsQuoteValue(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.bank.Mint(assetWETH, addrBob, e18(10))
	require.NoError(t, f.bank.Approve(ctx, assetWETH, addrBob, addrVault, e18(10)))
	shares, err := f.vault.DepositBase(ctx, addrBob, e18(10))
	require.NoError(t, err)

	// 10 WETH less 45 bps converts at the 1200 feed rate; the first mint
	// is 1:1 against that quote-denominated contribution.
	assert.Equal(t, e18(11_946), shares)
	assert.Equal(t, e18(11_946), f.bank.BalanceOf(assetDAI, addrVault))
	assert.Equal(t, domain.PositionClosed, f.vault.Position())
}

func TestWithdrawQuoteWhileOpen(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	shares := f.depositQuote(t, addrAlice, e18(10_000))
	_, err := f.vault.Buy(ctx, addrStrategist, f.quoteFor(t, domain.TradeBuy))
	require.NoError(t, err)

	got, err := f.vault.WithdrawQuote(ctx, addrAlice, shares)
	require.NoError(t, err)
	assert.Positive(t, got.Sign())
	assert.Equal(t, got, f.bank.BalanceOf(assetDAI, addrAlice))
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetWETH, addrAlice))
}

func TestAdminGating(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	err := f.vault.AddToWhiteList(ctx, addrAlice, addrAlice)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	err = f.vault.SetStrategist(ctx, addrStrategist, addrAlice)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, f.vault.SetStrategist(ctx, addrOwner, addrAlice))
	assert.Equal(t, addrAlice, f.vault.Strategist())

	// The new strategist manages the whitelist now.
	require.NoError(t, f.vault.AddToWhiteList(ctx, addrAlice, addrBob))
	assert.True(t, f.vault.IsWhitelisted(addrBob))

	err = f.vault.SetPartnerAddress(ctx, addrAlice, addrPartner)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	require.NoError(t, f.vault.SetPartnerAddress(ctx, addrOwner, addrPartner))
}

func TestApplyBpsConserves(t *testing.T) {
	for _, amount := range []*big.Int{big.NewInt(1), big.NewInt(9_999), e18(12_345)} {
		kept, taken := ApplyBps(amount, 45)
		assert.Equal(t, amount, new(big.Int).Add(kept, taken))
	}
	kept, taken := ApplyBps(big.NewInt(100), 45)
	assert.Equal(t, big.NewInt(100), kept) // fee floors to zero
	assert.Equal(t, 0, taken.Sign())
}
