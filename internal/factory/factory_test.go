package factory

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
	"github.com/upvault/vaultd/internal/vault"
)

type captureSink struct {
	events []domain.Event
}

func (c *captureSink) Emit(_ context.Context, _ string, evt domain.Event) {
	c.events = append(c.events, evt)
}

func testDeps() vault.Deps {
	bank := ledger.NewBank()
	ex := ledger.NewExchange(bank)
	return vault.Deps{
		Ledger:    bank,
		QuoteFeed: oracle.NewFixed(big.NewInt(1e8), 8),
		BaseFeed:  oracle.NewFixed(big.NewInt(1200e8), 8),
		Router:    ex,
		Executor:  ex,
	}
}

func testParams(name string) domain.VaultParams {
	return domain.VaultParams{
		Name:       name,
		QuoteAsset: domain.Asset{Address: common.HexToAddress("0x01"), Symbol: "DAI", Decimals: 18},
		BaseAsset:  domain.Asset{Address: common.HexToAddress("0x02"), Symbol: "WETH", Decimals: 18},
		MaxCap:     big.NewInt(1_000_000),
		Fees:       domain.FeeParams{AddrUpbots: common.HexToAddress("0x0c")},
	}
}

func TestGenerateRegistersVault(t *testing.T) {
	sink := &captureSink{}
	f := New(sink, nil)
	owner := common.HexToAddress("0xa1")
	strategist := common.HexToAddress("0xa2")

	v, err := f.Generate(context.Background(), owner, strategist, testParams("dai-weth"), testDeps())
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID())
	assert.NotEqual(t, common.Address{}, v.Address())
	assert.Equal(t, owner, v.Owner())
	assert.Equal(t, strategist, v.Strategist())

	got, err := f.Get(v.ID())
	require.NoError(t, err)
	assert.Same(t, v, got)

	got, err = f.GetByName("dai-weth")
	require.NoError(t, err)
	assert.Same(t, v, got)

	// Initialized from the vault itself plus VaultGenerated from the
	// factory.
	var generated bool
	for _, evt := range sink.events {
		if g, ok := evt.(domain.VaultGeneratedEvent); ok {
			generated = true
			assert.Equal(t, v.ID(), g.VaultID)
			assert.Equal(t, owner, g.Owner)
		}
	}
	assert.True(t, generated)
}

func TestGenerateUniqueIdentities(t *testing.T) {
	f := New(nil, nil)
	ctx := context.Background()

	a, err := f.Generate(ctx, common.HexToAddress("0xa1"), common.HexToAddress("0xa2"), testParams("one"), testDeps())
	require.NoError(t, err)
	b, err := f.Generate(ctx, common.HexToAddress("0xa1"), common.HexToAddress("0xa2"), testParams("two"), testDeps())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotEqual(t, a.Address(), b.Address())
	assert.Equal(t, 2, f.Count())
	assert.Equal(t, []*vault.Accounting{a, b}, f.List())
}

func TestGenerateRejectsDuplicateName(t *testing.T) {
	f := New(nil, nil)
	ctx := context.Background()

	_, err := f.Generate(ctx, common.HexToAddress("0xa1"), common.HexToAddress("0xa2"), testParams("dup"), testDeps())
	require.NoError(t, err)
	_, err = f.Generate(ctx, common.HexToAddress("0xa1"), common.HexToAddress("0xa2"), testParams("dup"), testDeps())
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 1, f.Count())
}

func TestGenerateRejectsInvalidParams(t *testing.T) {
	f := New(nil, nil)
	ctx := context.Background()

	p := testParams("")
	_, err := f.Generate(ctx, common.HexToAddress("0xa1"), common.HexToAddress("0xa2"), p, testDeps())
	require.Error(t, err)

	p = testParams("no-cap")
	p.MaxCap = nil
	_, err = f.Generate(ctx, common.HexToAddress("0xa1"), common.HexToAddress("0xa2"), p, testDeps())
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Equal(t, 0, f.Count())
}

func TestGetUnknown(t *testing.T) {
	f := New(nil, nil)
	_, err := f.Get("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.GetByName("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
