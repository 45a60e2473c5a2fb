package supervault

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/ledger"
	"github.com/upvault/vaultd/internal/oracle"
	"github.com/upvault/vaultd/internal/vault"
)

var (
	addrOwner      = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	addrStrategist = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	addrSuper      = common.HexToAddress("0x0000000000000000000000000000000000000A04")
	addrAlice      = common.HexToAddress("0x0000000000000000000000000000000000000B01")
	addrBob        = common.HexToAddress("0x0000000000000000000000000000000000000B02")
	addrUpbots     = common.HexToAddress("0x0000000000000000000000000000000000000C03")

	assetDAI = domain.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000000D01"), Symbol: "DAI", Decimals: 18}
)

func e18(x int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(x), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func e8(x int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(x), big.NewInt(1e8))
}

type fixture struct {
	bank   *ledger.Bank
	vaults []*vault.Accounting
	super  *Supervault
}

// newFixture builds three DAI-quoted children; caps overrides the max cap of
// the corresponding child, defaulting to 1M.
func newFixture(t *testing.T, active []int, caps ...*big.Int) *fixture {
	t.Helper()

	bank := ledger.NewBank()
	ex := ledger.NewExchange(bank)
	ex.SetPrice(assetDAI, domain.PricePoint{Price: e8(1), Decimals: 8})
	quoteFeed := oracle.NewFixed(e8(1), 8)

	basePrices := []int64{1200, 60_000, 230}
	children := make([]Child, 0, len(basePrices))
	vaults := make([]*vault.Accounting, 0, len(basePrices))
	for i, price := range basePrices {
		base := domain.Asset{
			Address:  common.BigToAddress(big.NewInt(int64(0xE00 + i))),
			Symbol:   fmt.Sprintf("BASE%d", i),
			Decimals: 18,
		}
		ex.SetPrice(base, domain.PricePoint{Price: e8(price), Decimals: 8})

		maxCap := e18(1_000_000)
		if i < len(caps) && caps[i] != nil {
			maxCap = caps[i]
		}

		v, err := vault.New(
			fmt.Sprintf("child-%d", i),
			common.BigToAddress(big.NewInt(int64(0xF00+i))),
			addrOwner, addrStrategist,
			domain.VaultParams{
				Name:                fmt.Sprintf("dai-base%d", i),
				QuoteAsset:          assetDAI,
				BaseAsset:           base,
				MaxCap:              maxCap,
				MaxSlippageBuyBps:   150,
				MaxSlippageSellBps:  500,
				ValuationHaircutBps: 150,
				PerfPartnerFallback: "retain",
				Fees: domain.FeeParams{
					PctDeposit:  45,
					PctWithdraw: 100,
					PctTradeFee: 8,
					AddrUpbots:  addrUpbots,
				},
			},
			vault.Deps{Ledger: bank, QuoteFeed: quoteFeed, BaseFeed: oracle.NewFixed(e8(price), 8), Router: ex, Executor: ex},
		)
		require.NoError(t, err)
		children = append(children, v)
		vaults = append(vaults, v)
	}

	s, err := New("super-1", addrSuper, addrOwner, addrStrategist, children, active, bank, nil, nil)
	require.NoError(t, err)

	return &fixture{bank: bank, vaults: vaults, super: s}
}

func (f *fixture) deposit(t *testing.T, who common.Address, amount *big.Int) *big.Int {
	t.Helper()
	ctx := context.Background()
	f.bank.Mint(assetDAI, who, amount)
	require.NoError(t, f.bank.Approve(ctx, assetDAI, who, addrSuper, amount))
	shares, err := f.super.Deposit(ctx, who, amount)
	require.NoError(t, err)
	return shares
}

func TestDepositSplitsAcrossActiveChildren(t *testing.T) {
	f := newFixture(t, []int{0, 1})
	f.deposit(t, addrAlice, e18(10_000))

	// Each active child received 5000 and took its own 45 bps fee; the
	// inactive child received nothing.
	net, _ := vault.ApplyBps(e18(5_000), 45)
	assert.Equal(t, net, f.vaults[0].SharesOf(addrSuper))
	assert.Equal(t, net, f.vaults[1].SharesOf(addrSuper))
	assert.Equal(t, new(big.Int), f.vaults[2].SharesOf(addrSuper))

	// No quote stays parked in the supervault account.
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, addrSuper))
}

func TestDepositRejectsWhenChildCapFull(t *testing.T) {
	f := newFixture(t, []int{0, 1}, nil, big.NewInt(1))
	ctx := context.Background()

	f.bank.Mint(assetDAI, addrAlice, e18(10_000))
	require.NoError(t, f.bank.Approve(ctx, assetDAI, addrAlice, addrSuper, e18(10_000)))

	_, err := f.super.Deposit(ctx, addrAlice, e18(10_000))
	require.ErrorIs(t, err, domain.ErrMaxCapExceeded)

	// Caps are checked across the whole active set before any capital
	// moves: the caller keeps the full amount, no child holds a slice,
	// and no supervault shares exist.
	assert.Equal(t, e18(10_000), f.bank.BalanceOf(assetDAI, addrAlice))
	assert.Equal(t, new(big.Int), f.vaults[0].SharesOf(addrSuper))
	assert.Equal(t, new(big.Int), f.vaults[1].SharesOf(addrSuper))
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, addrSuper))
	assert.Equal(t, new(big.Int), f.super.TotalShares())
}

// rejectingChild passes the cap gate but refuses every sub-deposit.
type rejectingChild struct{}

func (rejectingChild) ID() string              { return "rejecting" }
func (rejectingChild) Address() common.Address { return common.HexToAddress("0xbad") }
func (rejectingChild) Params() domain.VaultParams {
	return domain.VaultParams{QuoteAsset: assetDAI, MaxCap: e18(1_000_000)}
}
func (rejectingChild) DepositQuote(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return nil, domain.ErrSlippageExceeded
}
func (rejectingChild) WithdrawQuote(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return new(big.Int), nil
}
func (rejectingChild) SharesOf(common.Address) *big.Int { return new(big.Int) }
func (rejectingChild) EstimatedDeposit(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}
func (rejectingChild) EstimatedPoolSize(context.Context) (*big.Int, error) {
	return new(big.Int), nil
}

func TestDepositUnwindsOnChildFailure(t *testing.T) {
	f := newFixture(t, []int{0})
	ctx := context.Background()

	superAddr := common.HexToAddress("0x0000000000000000000000000000000000000A05")
	s, err := New("super-2", superAddr, addrOwner, addrStrategist,
		[]Child{f.vaults[0], rejectingChild{}}, []int{0, 1}, f.bank, nil, nil)
	require.NoError(t, err)

	f.bank.Mint(assetDAI, addrAlice, e18(10_000))
	require.NoError(t, f.bank.Approve(ctx, assetDAI, addrAlice, superAddr, e18(10_000)))

	_, err = s.Deposit(ctx, addrAlice, e18(10_000))
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// The first child's slice is redeemed back and returned together with
	// the undeposited remainder; only the child's own deposit and withdraw
	// fees are unrecoverable.
	placed, _ := vault.ApplyBps(e18(5_000), 45)
	recovered, _ := vault.ApplyBps(placed, 100)
	refund := new(big.Int).Add(recovered, e18(5_000))

	assert.Equal(t, refund, f.bank.BalanceOf(assetDAI, addrAlice))
	assert.Equal(t, new(big.Int), f.vaults[0].SharesOf(superAddr))
	assert.Equal(t, new(big.Int), f.bank.BalanceOf(assetDAI, superAddr))
	assert.Equal(t, new(big.Int), s.TotalShares())
}

func TestDepositRemainderGoesToFirstActive(t *testing.T) {
	f := newFixture(t, []int{1, 2})
	amount := new(big.Int).Add(e18(10_000), big.NewInt(1))
	f.deposit(t, addrAlice, amount)

	// 10000e18+1 over two children: the first active index gets the spare
	// unit.
	first := f.vaults[1].SharesOf(addrSuper)
	second := f.vaults[2].SharesOf(addrSuper)
	assert.Equal(t, big.NewInt(1), new(big.Int).Sub(first, second))
}

func TestSupervaultShareProportionality(t *testing.T) {
	f := newFixture(t, []int{0, 1, 2})

	s1 := f.deposit(t, addrAlice, e18(9_000))
	s2 := f.deposit(t, addrBob, e18(18_000))

	// Same pool conditions, twice the capital, twice the shares (up to
	// flooring in the child fee accounting).
	ratio := new(big.Int).Quo(s2, s1)
	assert.Equal(t, big.NewInt(2), ratio)

	va, err := f.super.EstimatedDeposit(context.Background(), addrAlice)
	require.NoError(t, err)
	vb, err := f.super.EstimatedDeposit(context.Background(), addrBob)
	require.NoError(t, err)
	assert.Positive(t, vb.Cmp(va))
}

func TestWithdrawRedeemsFromAllChildren(t *testing.T) {
	f := newFixture(t, []int{0, 1})
	ctx := context.Background()

	shares := f.deposit(t, addrAlice, e18(10_000))

	// Rotate deposits to child 2 and add more capital there, then leave.
	require.NoError(t, f.super.UpdateActiveVaults(ctx, addrStrategist, []int{2}))
	shares2 := f.deposit(t, addrAlice, e18(4_000))

	all := new(big.Int).Add(shares, shares2)
	got, err := f.super.Withdraw(ctx, addrAlice, all)
	require.NoError(t, err)

	// Every child position was fully unwound, including the deactivated
	// ones.
	for i, v := range f.vaults {
		assert.Equal(t, new(big.Int), v.SharesOf(addrSuper), "child %d", i)
	}
	assert.Equal(t, got, f.bank.BalanceOf(assetDAI, addrAlice))
	assert.Positive(t, got.Sign())
	assert.Equal(t, new(big.Int), f.super.TotalShares())
}

func TestWithdrawMoreThanHeld(t *testing.T) {
	f := newFixture(t, []int{0})
	shares := f.deposit(t, addrAlice, e18(1_000))

	over := new(big.Int).Add(shares, big.NewInt(1))
	_, err := f.super.Withdraw(context.Background(), addrAlice, over)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestUpdateActiveVaultsMovesNoCapital(t *testing.T) {
	f := newFixture(t, []int{0, 1})
	ctx := context.Background()
	f.deposit(t, addrAlice, e18(10_000))

	before0 := f.vaults[0].SharesOf(addrSuper)
	before1 := f.vaults[1].SharesOf(addrSuper)

	require.NoError(t, f.super.UpdateActiveVaults(ctx, addrStrategist, []int{2}))
	assert.Equal(t, []int{2}, f.super.ActiveVaults())

	// Routing changed, stakes did not.
	assert.Equal(t, before0, f.vaults[0].SharesOf(addrSuper))
	assert.Equal(t, before1, f.vaults[1].SharesOf(addrSuper))
	assert.Equal(t, new(big.Int), f.vaults[2].SharesOf(addrSuper))
}

func TestUpdateActiveVaultsValidation(t *testing.T) {
	f := newFixture(t, []int{0})
	ctx := context.Background()

	err := f.super.UpdateActiveVaults(ctx, addrAlice, []int{1})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.Error(t, f.super.UpdateActiveVaults(ctx, addrStrategist, nil))
	require.Error(t, f.super.UpdateActiveVaults(ctx, addrStrategist, []int{3}))
	require.Error(t, f.super.UpdateActiveVaults(ctx, addrStrategist, []int{-1}))
	require.Error(t, f.super.UpdateActiveVaults(ctx, addrStrategist, []int{0, 0}))

	// Unchanged after every rejection.
	assert.Equal(t, []int{0}, f.super.ActiveVaults())
}

func TestNewRejectsMismatchedQuoteAssets(t *testing.T) {
	f := newFixture(t, []int{0})

	other := domain.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000000D09"), Symbol: "USDT", Decimals: 6}
	bad, err := vault.New("bad", common.HexToAddress("0x0000000000000000000000000000000000000F09"),
		addrOwner, addrStrategist,
		domain.VaultParams{
			Name:       "usdt-child",
			QuoteAsset: other,
			BaseAsset:  domain.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000000E09"), Decimals: 18},
			MaxCap:     e18(1),
			Fees:       domain.FeeParams{AddrUpbots: addrUpbots},
		},
		vault.Deps{Ledger: f.bank, QuoteFeed: oracle.NewFixed(e8(1), 8), BaseFeed: oracle.NewFixed(e8(1), 8), Router: ledger.NewExchange(f.bank), Executor: ledger.NewExchange(f.bank)},
	)
	require.NoError(t, err)

	_, err = New("super-bad", addrSuper, addrOwner, addrStrategist,
		[]Child{f.vaults[0], bad}, []int{0}, f.bank, nil, nil)
	require.Error(t, err)
}
