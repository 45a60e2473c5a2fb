package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/upvault/vaultd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each feed's
// latest observation is stored at key "price:{feedID}" with fields "price"
// (decimal string, arbitrary precision), "decimals", and "ts" (Unix
// nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(feedID string) string {
	return "price:" + feedID
}

// SetPrice stores the latest feed observation.
func (pc *PriceCache) SetPrice(ctx context.Context, feedID string, price *big.Int, decimals uint8, ts time.Time) error {
	fields := map[string]interface{}{
		"price":    price.String(),
		"decimals": strconv.FormatUint(uint64(decimals), 10),
		"ts":       strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(feedID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", feedID, err)
	}
	return nil
}

// GetPrice retrieves the latest observation for a feed. It returns
// domain.ErrNotFound when no observation has been stored.
func (pc *PriceCache) GetPrice(ctx context.Context, feedID string) (domain.PricePoint, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(feedID)).Result()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get price %s: %w", feedID, err)
	}
	if len(vals) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("redis: parse price %s: bad value %q", feedID, priceStr)
	}

	decimals, err := strconv.ParseUint(vals["decimals"], 10, 8)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse decimals %s: %w", feedID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse ts %s: %w", feedID, err)
	}

	return domain.PricePoint{
		Price:     price,
		Decimals:  uint8(decimals),
		UpdatedAt: time.Unix(0, tsNano),
	}, nil
}
