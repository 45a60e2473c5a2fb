package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger is the execution substrate that holds token balances. Every
// transfer either fully succeeds or fails with no effect. The accounting core
// never mutates balances except through this interface.
type TokenLedger interface {
	// BalanceOf returns a copy of the owner's balance for the asset.
	BalanceOf(asset Asset, owner common.Address) *big.Int

	// Approve grants spender the right to pull up to amount from owner.
	Approve(ctx context.Context, asset Asset, owner, spender common.Address, amount *big.Int) error

	// Allowance returns a copy of the remaining approval.
	Allowance(asset Asset, owner, spender common.Address) *big.Int

	// TransferIn pulls amount of asset from `from` into `to`, consuming the
	// allowance `from` granted `to`. Fails with ErrInsufficientBalance or
	// ErrInsufficientAllowance.
	TransferIn(ctx context.Context, asset Asset, from, to common.Address, amount *big.Int) error

	// TransferOut pushes amount of asset from `from` to `to`. Fails with
	// ErrInsufficientBalance.
	TransferOut(ctx context.Context, asset Asset, from, to common.Address, amount *big.Int) error
}
