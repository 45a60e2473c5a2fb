package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies an ERC-20 style token by contract address plus the
// metadata the accounting model needs to normalize amounts.
type Asset struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Equal reports whether two assets refer to the same token contract.
func (a Asset) Equal(b Asset) bool {
	return a.Address == b.Address
}

// String returns the symbol when set, otherwise the checksummed address.
func (a Asset) String() string {
	if a.Symbol != "" {
		return a.Symbol
	}
	return a.Address.Hex()
}
