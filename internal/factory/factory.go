// Package factory creates and registers vault instances. Every vault gets a
// unique identifier and a dedicated ledger account derived from it, and the
// registry is the single lookup point the service layer works through.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/vault"
)

// Factory builds vaults and keeps the live registry.
type Factory struct {
	mu     sync.RWMutex
	vaults map[string]*vault.Accounting
	byName map[string]string
	order  []string

	sink   domain.EventSink
	logger *slog.Logger
}

type noopSink struct{}

func (noopSink) Emit(context.Context, string, domain.Event) {}

// New returns an empty factory.
func New(sink domain.EventSink, logger *slog.Logger) *Factory {
	if sink == nil {
		sink = noopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		vaults: make(map[string]*vault.Accounting),
		byName: make(map[string]string),
		sink:   sink,
		logger: logger.With(slog.String("component", "factory")),
	}
}

// accountFor derives the vault's ledger account from its identifier, so two
// vaults can never share balances.
func accountFor(id uuid.UUID) common.Address {
	return common.BytesToAddress(id[:])
}

// Generate creates a vault under params, registers it, and emits
// VaultGenerated. Vault names must be unique within the factory.
func (f *Factory) Generate(ctx context.Context, owner, strategist common.Address, params domain.VaultParams, deps vault.Deps) (*vault.Accounting, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("factory: vault name required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byName[params.Name]; ok {
		return nil, fmt.Errorf("factory: vault %q: %w", params.Name, domain.ErrAlreadyExists)
	}

	id := uuid.New()
	v, err := vault.New(id.String(), accountFor(id), owner, strategist, params, deps)
	if err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}

	f.vaults[v.ID()] = v
	f.byName[params.Name] = v.ID()
	f.order = append(f.order, v.ID())

	f.logger.InfoContext(ctx, "vault generated",
		slog.String("vault_id", v.ID()),
		slog.String("name", params.Name),
		slog.String("owner", owner.Hex()),
	)
	f.sink.Emit(ctx, v.ID(), domain.VaultGeneratedEvent{
		VaultID: v.ID(),
		Name:    params.Name,
		Owner:   owner,
	})

	return v, nil
}

// Get returns the vault registered under id.
func (f *Factory) Get(id string) (*vault.Accounting, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.vaults[id]
	if !ok {
		return nil, fmt.Errorf("factory: vault %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

// GetByName returns the vault registered under name.
func (f *Factory) GetByName(name string) (*vault.Accounting, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("factory: vault %q: %w", name, domain.ErrNotFound)
	}
	return f.vaults[id], nil
}

// List returns every registered vault in creation order.
func (f *Factory) List() []*vault.Accounting {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*vault.Accounting, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.vaults[id])
	}
	return out
}

// Count returns the number of registered vaults.
func (f *Factory) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.order)
}
