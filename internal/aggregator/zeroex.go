// Package aggregator holds the swap-aggregator quote clients. They are pure
// price oracles here: a quote carries the expected output and an opaque
// execution payload, and the settlement slippage gate decides whether it is
// usable.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/upvault/vaultd/internal/domain"
)

// ZeroExClient fetches swap quotes from the 0x swap API.
type ZeroExClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ domain.Quoter = (*ZeroExClient)(nil)

// NewZeroExClient creates a 0x quote client.
//
// baseURL is the API root, e.g. "https://api.0x.org".
func NewZeroExClient(baseURL, apiKey string) *ZeroExClient {
	return &ZeroExClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type zeroExQuote struct {
	BuyAmount string `json:"buyAmount"`
	Data      string `json:"data"`
	To        string `json:"to"`
}

// Quote asks for a firm sell quote: amount of `from` into `to`. The returned
// payload is the 0x calldata, passed through to settlement untouched.
func (c *ZeroExClient) Quote(ctx context.Context, from, to domain.Asset, amount *big.Int) (domain.Quote, error) {
	q := url.Values{}
	q.Set("sellToken", from.Address.Hex())
	q.Set("buyToken", to.Address.Hex())
	q.Set("sellAmount", amount.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/swap/v1/quote?"+q.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/0x: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("0x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/0x: quote %s->%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/0x: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("aggregator/0x: quote %s->%s: status %d: %s", from, to, resp.StatusCode, body)
	}

	var out zeroExQuote
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/0x: decode quote: %w", err)
	}
	buy, ok := new(big.Int).SetString(out.BuyAmount, 10)
	if !ok {
		return domain.Quote{}, fmt.Errorf("aggregator/0x: bad buyAmount %q", out.BuyAmount)
	}

	return domain.Quote{OutputAmount: buy, Payload: []byte(out.Data)}, nil
}
