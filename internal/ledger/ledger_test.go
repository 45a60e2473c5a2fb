package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upvault/vaultd/internal/domain"
)

var (
	dai = domain.Asset{
		Address:  common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
		Symbol:   "DAI",
		Decimals: 18,
	}
	weth = domain.Asset{
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Symbol:   "WETH",
		Decimals: 18,
	}

	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func price(usd int64) domain.PricePoint {
	return domain.PricePoint{
		Price:     new(big.Int).Mul(big.NewInt(usd), big.NewInt(1e8)),
		Decimals:  8,
		UpdatedAt: time.Now().UTC(),
	}
}

func TestTransferInConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(dai, alice, e18(100))
	require.NoError(t, bank.Approve(ctx, dai, alice, bob, e18(60)))

	require.NoError(t, bank.TransferIn(ctx, dai, alice, bob, e18(40)))

	assert.Equal(t, e18(60), bank.BalanceOf(dai, alice))
	assert.Equal(t, e18(40), bank.BalanceOf(dai, bob))
	assert.Equal(t, e18(20), bank.Allowance(dai, alice, bob))
}

func TestTransferInRejectsAllowanceOverrun(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(dai, alice, e18(100))
	require.NoError(t, bank.Approve(ctx, dai, alice, bob, e18(10)))

	err := bank.TransferIn(ctx, dai, alice, bob, e18(11))
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	// Nothing moved, allowance intact.
	assert.Equal(t, e18(100), bank.BalanceOf(dai, alice))
	assert.Equal(t, e18(10), bank.Allowance(dai, alice, bob))
}

func TestTransferInIsAtomicOnShortBalance(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(dai, alice, e18(5))
	require.NoError(t, bank.Approve(ctx, dai, alice, bob, e18(50)))

	err := bank.TransferIn(ctx, dai, alice, bob, e18(10))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The allowance is only consumed on success.
	assert.Equal(t, e18(5), bank.BalanceOf(dai, alice))
	assert.Equal(t, e18(50), bank.Allowance(dai, alice, bob))
}

func TestTransferOutRejectsShortBalance(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(dai, alice, e18(1))

	err := bank.TransferOut(ctx, dai, alice, bob, e18(2))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, e18(1), bank.BalanceOf(dai, alice))
}

func TestTransferRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(dai, alice, e18(10))

	require.ErrorIs(t, bank.TransferOut(ctx, dai, alice, bob, big.NewInt(0)), domain.ErrInvalidAmount)
	require.ErrorIs(t, bank.TransferOut(ctx, dai, alice, bob, big.NewInt(-1)), domain.ErrInvalidAmount)
	require.ErrorIs(t, bank.TransferIn(ctx, dai, alice, bob, nil), domain.ErrInvalidAmount)
}

func TestExchangeQuotesAtOracleRatio(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	ex := NewExchange(bank)
	ex.SetPrice(dai, price(1))
	ex.SetPrice(weth, price(1200))

	quote, err := ex.Quote(ctx, dai, weth, e18(1200))
	require.NoError(t, err)
	assert.Equal(t, e18(1), quote.OutputAmount)
}

func TestExchangeSwapMovesBalances(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	ex := NewExchange(bank)
	ex.SetPrice(dai, price(1))
	ex.SetPrice(weth, price(1200))
	bank.Mint(dai, alice, e18(2400))

	out, err := ex.Swap(ctx, alice, dai, weth, e18(1200), nil)
	require.NoError(t, err)
	assert.Equal(t, e18(1), out)
	assert.Equal(t, e18(1200), bank.BalanceOf(dai, alice))
	assert.Equal(t, e18(1), bank.BalanceOf(weth, alice))
}

func TestExchangeExecBpsScalesFill(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	ex := NewExchange(bank)
	ex.SetPrice(dai, price(1))
	ex.SetPrice(weth, price(1200))
	ex.SetExecBps(9900) // fill 1% under oracle
	bank.Mint(dai, alice, e18(1200))

	out, err := ex.Swap(ctx, alice, dai, weth, e18(1200), nil)
	require.NoError(t, err)

	want := new(big.Int).Div(new(big.Int).Mul(e18(1), big.NewInt(9900)), big.NewInt(10000))
	assert.Equal(t, want, out)
}

func TestExchangeSwapExactInEnforcesMinOut(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	ex := NewExchange(bank)
	ex.SetPrice(dai, price(1))
	ex.SetPrice(weth, price(1200))
	bank.Mint(dai, alice, e18(1200))

	_, err := ex.SwapExactIn(ctx, alice, dai, weth, e18(1200), e18(2), bob)
	require.Error(t, err)

	out, err := ex.SwapExactIn(ctx, alice, dai, weth, e18(1200), e18(1), bob)
	require.NoError(t, err)
	assert.Equal(t, e18(1), out)
	assert.Equal(t, e18(1), bank.BalanceOf(weth, bob))
}

func TestExchangeRejectsUnknownAsset(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	ex := NewExchange(bank)
	ex.SetPrice(dai, price(1))

	_, err := ex.Quote(ctx, dai, weth, e18(1))
	require.Error(t, err)
}
