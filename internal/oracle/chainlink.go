package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/upvault/vaultd/internal/domain"
)

// aggregatorABI is the subset of the Chainlink AggregatorV3Interface the feed
// client needs.
const aggregatorABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"name":"roundId","type":"uint80"},
    {"name":"answer","type":"int256"},
    {"name":"startedAt","type":"uint256"},
    {"name":"updatedAt","type":"uint256"},
    {"name":"answeredInRound","type":"uint80"}
  ],"stateMutability":"view","type":"function"}
]`

// Chainlink reads prices from an on-chain AggregatorV3 feed contract.
// Feed decimals are read once on first use and cached.
type Chainlink struct {
	client *ethclient.Client
	addr   common.Address
	abi    abi.ABI

	decOnce  sync.Once
	decimals uint8
	decErr   error
}

var _ domain.PriceFeed = (*Chainlink)(nil)

// NewChainlink returns a feed client bound to one aggregator contract.
func NewChainlink(client *ethclient.Client, addr common.Address) (*Chainlink, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}
	return &Chainlink{client: client, addr: addr, abi: parsed}, nil
}

func (c *Chainlink) call(ctx context.Context, method string, out []any) error {
	data, err := c.abi.Pack(method)
	if err != nil {
		return fmt.Errorf("oracle: pack %s: %w", method, err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("oracle: call %s on %s: %w", method, c.addr.Hex(), err)
	}
	res, err := c.abi.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("oracle: unpack %s: %w", method, err)
	}
	for i := range out {
		switch p := out[i].(type) {
		case *uint8:
			*p = res[i].(uint8)
		case **big.Int:
			*p = res[i].(*big.Int)
		}
	}
	return nil
}

func (c *Chainlink) feedDecimals(ctx context.Context) (uint8, error) {
	c.decOnce.Do(func() {
		var d uint8
		c.decErr = c.call(ctx, "decimals", []any{&d})
		c.decimals = d
	})
	return c.decimals, c.decErr
}

// Latest fetches the most recent round from the aggregator. Non-positive
// answers are rejected rather than propagated into valuations.
func (c *Chainlink) Latest(ctx context.Context) (domain.PricePoint, error) {
	dec, err := c.feedDecimals(ctx)
	if err != nil {
		return domain.PricePoint{}, err
	}

	var roundID, answer, startedAt, updatedAt, answeredIn *big.Int
	if err := c.call(ctx, "latestRoundData", []any{&roundID, &answer, &startedAt, &updatedAt, &answeredIn}); err != nil {
		return domain.PricePoint{}, err
	}
	if answer == nil || answer.Sign() <= 0 {
		return domain.PricePoint{}, fmt.Errorf("oracle: feed %s returned non-positive answer", c.addr.Hex())
	}

	return domain.PricePoint{
		Price:     answer,
		Decimals:  dec,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}
