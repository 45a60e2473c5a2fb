// Package ledger provides the in-memory token execution substrate the
// accounting model runs against: an atomic balance/allowance bank and a
// deterministic price-curve exchange for swap execution.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// Bank holds token balances and allowances keyed by asset contract and
// owner. All operations are atomic: a failed transfer leaves every balance
// untouched. Bank implements domain.TokenLedger.
type Bank struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

var _ domain.TokenLedger = (*Bank)(nil)

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Mint credits amount of asset to owner out of thin air.
func (b *Bank) Mint(asset domain.Asset, owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset.Address, owner, amount)
}

func (b *Bank) credit(asset, owner common.Address, amount *big.Int) {
	owners, ok := b.balances[asset]
	if !ok {
		owners = make(map[common.Address]*big.Int)
		b.balances[asset] = owners
	}
	bal, ok := owners[owner]
	if !ok {
		bal = new(big.Int)
		owners[owner] = bal
	}
	bal.Add(bal, amount)
}

// debit fails without effect when the balance is short.
func (b *Bank) debit(asset, owner common.Address, amount *big.Int) error {
	bal, ok := b.balances[asset][owner]
	if !ok || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}

// BalanceOf returns a copy of owner's balance for asset.
func (b *Bank) BalanceOf(asset domain.Asset, owner common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[asset.Address][owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Approve sets spender's allowance over owner's asset balance.
func (b *Bank) Approve(_ context.Context, asset domain.Asset, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: approve: %w", domain.ErrInvalidAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[allowanceKey{asset.Address, owner, spender}] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns a copy of the remaining approval.
func (b *Bank) Allowance(asset domain.Asset, owner, spender common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if al, ok := b.allowances[allowanceKey{asset.Address, owner, spender}]; ok {
		return new(big.Int).Set(al)
	}
	return new(big.Int)
}

// TransferIn pulls amount of asset from `from` into `to` against the
// allowance `from` granted `to`.
func (b *Bank) TransferIn(_ context.Context, asset domain.Asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: transfer in: %w", domain.ErrInvalidAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := allowanceKey{asset.Address, from, to}
	al, ok := b.allowances[key]
	if !ok || al.Cmp(amount) < 0 {
		return fmt.Errorf("bank: transfer in: %w", domain.ErrInsufficientAllowance)
	}
	if err := b.debit(asset.Address, from, amount); err != nil {
		return fmt.Errorf("bank: transfer in: %w", err)
	}
	al.Sub(al, amount)
	b.credit(asset.Address, to, amount)
	return nil
}

// TransferOut pushes amount of asset from `from` to `to`.
func (b *Bank) TransferOut(_ context.Context, asset domain.Asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: transfer out: %w", domain.ErrInvalidAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.debit(asset.Address, from, amount); err != nil {
		return fmt.Errorf("bank: transfer out: %w", err)
	}
	b.credit(asset.Address, to, amount)
	return nil
}
