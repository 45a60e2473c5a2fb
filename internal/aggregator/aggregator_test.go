package aggregator

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upvault/vaultd/internal/domain"
)

var (
	fromAsset = domain.Asset{Address: common.HexToAddress("0x01"), Symbol: "DAI", Decimals: 18}
	toAsset   = domain.Asset{Address: common.HexToAddress("0x02"), Symbol: "WETH", Decimals: 18}
)

func TestZeroExQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v1/quote", r.URL.Path)
		assert.Equal(t, fromAsset.Address.Hex(), r.URL.Query().Get("sellToken"))
		assert.Equal(t, toAsset.Address.Hex(), r.URL.Query().Get("buyToken"))
		assert.Equal(t, "1000000", r.URL.Query().Get("sellAmount"))
		assert.Equal(t, "test-key", r.Header.Get("0x-api-key"))
		w.Write([]byte(`{"buyAmount":"829133","data":"0xdeadbeef","to":"0x0"}`))
	}))
	defer srv.Close()

	c := NewZeroExClient(srv.URL, "test-key")
	q, err := c.Quote(context.Background(), fromAsset, toAsset, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(829_133), q.OutputAmount)
	assert.Equal(t, []byte("0xdeadbeef"), q.Payload)
}

func TestZeroExQuoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"reason":"insufficient liquidity"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewZeroExClient(srv.URL, "")
	_, err := c.Quote(context.Background(), fromAsset, toAsset, big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestOneInchQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v6.0/56/quote", r.URL.Path)
		assert.Equal(t, fromAsset.Address.Hex(), r.URL.Query().Get("src"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"dstAmount":"829000"}`))
	}))
	defer srv.Close()

	c := NewOneInchClient(srv.URL, "test-key", 56)
	q, err := c.Quote(context.Background(), fromAsset, toAsset, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(829_000), q.OutputAmount)
	assert.Nil(t, q.Payload)
}

func TestOneInchQuoteBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dstAmount":"not-a-number"}`))
	}))
	defer srv.Close()

	c := NewOneInchClient(srv.URL, "", 1)
	_, err := c.Quote(context.Background(), fromAsset, toAsset, big.NewInt(1))
	require.Error(t, err)
}
