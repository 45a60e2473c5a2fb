// Package oracle provides price feed implementations: an on-chain
// Chainlink aggregator client and a settable fixed feed for wiring and
// tests.
package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/upvault/vaultd/internal/domain"
)

// Fixed is a price feed that returns whatever was last set on it.
type Fixed struct {
	mu sync.RWMutex
	p  domain.PricePoint
}

var _ domain.PriceFeed = (*Fixed)(nil)

// NewFixed returns a feed pinned at price with the given feed decimals.
func NewFixed(price *big.Int, decimals uint8) *Fixed {
	f := &Fixed{}
	f.Set(price, decimals)
	return f
}

// Set replaces the feed observation.
func (f *Fixed) Set(price *big.Int, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.p = domain.PricePoint{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		UpdatedAt: time.Now().UTC(),
	}
}

// Latest returns the current observation.
func (f *Fixed) Latest(context.Context) (domain.PricePoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return domain.PricePoint{
		Price:     new(big.Int).Set(f.p.Price),
		Decimals:  f.p.Decimals,
		UpdatedAt: f.p.UpdatedAt,
	}, nil
}
