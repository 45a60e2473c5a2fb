// Package vault implements the reference vault accounting model: share
// issuance, fee deduction, position state transitions, and trade settlement
// against injected oracle and ledger capabilities.
package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// BurnAddress receives the burning share of performance fees.
var BurnAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

var bpsDenom = big.NewInt(domain.BpsDenom)

// ApplyBps splits amount into the portion kept and the fee taken at the given
// basis points. The fee is floored; kept + taken == amount always.
func ApplyBps(amount *big.Int, bps int64) (kept, taken *big.Int) {
	taken = new(big.Int).Mul(amount, big.NewInt(bps))
	taken.Quo(taken, bpsDenom)
	kept = new(big.Int).Sub(amount, taken)
	return kept, taken
}

// perfShare is one recipient's cut of a performance fee.
type perfShare struct {
	recipient common.Address
	amount    *big.Int
}

// perfSplit computes the performance-fee distribution for profitAmount. Each
// share is floored independently against the pre-fee base; remainders stay in
// the pool. When the partner address is unset the partner share follows the
// configured fallback: retained in the pool or redirected to the upbots
// recipient.
func perfSplit(profitAmount *big.Int, fees domain.FeeParams, partnerFallback string) []perfShare {
	cut := func(bps int64) *big.Int {
		_, taken := ApplyBps(profitAmount, bps)
		return taken
	}

	shares := []perfShare{
		{BurnAddress, cut(fees.PctPerfBurning)},
		{fees.AddrStakers, cut(fees.PctPerfStakers)},
		{fees.AddrAlgoDev, cut(fees.PctPerfAlgoDev)},
		{fees.AddrUpbots, cut(fees.PctPerfUpbots)},
	}

	if fees.PartnerSet() {
		shares = append(shares, perfShare{fees.AddrPartner, cut(fees.PctPerfPartners)})
	} else if partnerFallback == "upbots" {
		shares = append(shares, perfShare{fees.AddrUpbots, cut(fees.PctPerfPartners)})
	}
	// Fallback "retain": the partner cut never leaves the pool.

	out := shares[:0]
	for _, s := range shares {
		if s.amount.Sign() > 0 {
			out = append(out, s)
		}
	}
	return out
}
