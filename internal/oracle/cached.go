package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/upvault/vaultd/internal/domain"
)

// Cached wraps a PriceFeed with a shared price cache. Reads are served from
// the cache while the observation is younger than maxAge; otherwise the
// underlying feed is queried and the cache refreshed. Cache failures degrade
// to direct feed reads.
type Cached struct {
	feed   domain.PriceFeed
	cache  domain.PriceCache
	feedID string
	maxAge time.Duration
	logger *slog.Logger
}

var _ domain.PriceFeed = (*Cached)(nil)

// NewCached creates a Cached feed keyed by feedID.
func NewCached(feed domain.PriceFeed, cache domain.PriceCache, feedID string, maxAge time.Duration, logger *slog.Logger) *Cached {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &Cached{
		feed:   feed,
		cache:  cache,
		feedID: feedID,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "cached_feed"), slog.String("feed_id", feedID)),
	}
}

// Latest returns the freshest available observation.
func (c *Cached) Latest(ctx context.Context) (domain.PricePoint, error) {
	if p, err := c.cache.GetPrice(ctx, c.feedID); err == nil {
		if time.Since(p.UpdatedAt) < c.maxAge {
			return p, nil
		}
	}

	p, err := c.feed.Latest(ctx)
	if err != nil {
		return domain.PricePoint{}, err
	}

	if cacheErr := c.cache.SetPrice(ctx, c.feedID, p.Price, p.Decimals, p.UpdatedAt); cacheErr != nil {
		c.logger.WarnContext(ctx, "oracle: price cache set failed",
			slog.String("error", cacheErr.Error()),
		)
	}
	return p, nil
}
