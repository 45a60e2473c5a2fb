package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/upvault/vaultd/internal/domain"
)

// OneInchClient fetches swap quotes from the 1inch aggregation API.
type OneInchClient struct {
	baseURL    string
	apiKey     string
	chainID    int64
	httpClient *http.Client
}

var _ domain.Quoter = (*OneInchClient)(nil)

// NewOneInchClient creates a 1inch quote client for one chain.
//
// baseURL is the API root, e.g. "https://api.1inch.dev".
func NewOneInchClient(baseURL, apiKey string, chainID int64) *OneInchClient {
	return &OneInchClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		chainID: chainID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type oneInchQuote struct {
	DstAmount string `json:"dstAmount"`
}

// Quote asks for the expected output of swapping amount of `from` into `to`.
// 1inch quotes carry no execution payload; they are used for the slippage
// cross-check against the primary venue.
func (c *OneInchClient) Quote(ctx context.Context, from, to domain.Asset, amount *big.Int) (domain.Quote, error) {
	q := url.Values{}
	q.Set("src", from.Address.Hex())
	q.Set("dst", to.Address.Hex())
	q.Set("amount", amount.String())

	endpoint := c.baseURL + "/swap/v6.0/" + strconv.FormatInt(c.chainID, 10) + "/quote?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/1inch: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/1inch: quote %s->%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/1inch: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("aggregator/1inch: quote %s->%s: status %d: %s", from, to, resp.StatusCode, body)
	}

	var out oneInchQuote
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Quote{}, fmt.Errorf("aggregator/1inch: decode quote: %w", err)
	}
	dst, ok := new(big.Int).SetString(out.DstAmount, 10)
	if !ok {
		return domain.Quote{}, fmt.Errorf("aggregator/1inch: bad dstAmount %q", out.DstAmount)
	}

	return domain.Quote{OutputAmount: dst}, nil
}
