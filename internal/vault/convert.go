package vault

import (
	"math/big"

	"github.com/upvault/vaultd/internal/domain"
)

var big10 = big.NewInt(10)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big10, big.NewInt(int64(n)), nil)
}

// feedConvert expresses amount of `from` in units of `to` using the two feed
// observations. Feed prices are fixed-point with per-feed decimals; asset
// amounts are in smallest token units, so both feed and token precision must
// be normalized:
//
//	out = amount * priceFrom * 10^(decTo+fdTo) / (priceTo * 10^(decFrom+fdFrom))
func feedConvert(amount *big.Int, from, to domain.Asset, fromP, toP domain.PricePoint) *big.Int {
	num := new(big.Int).Mul(amount, fromP.Price)
	num.Mul(num, pow10(to.Decimals))
	num.Mul(num, pow10(toP.Decimals))

	den := new(big.Int).Mul(toP.Price, pow10(from.Decimals))
	den.Mul(den, pow10(fromP.Decimals))

	return num.Quo(num, den)
}

// applyHaircut discounts a feed-derived valuation by the given basis points.
func applyHaircut(amount *big.Int, haircutBps int64) *big.Int {
	kept, _ := ApplyBps(amount, haircutBps)
	return kept
}
