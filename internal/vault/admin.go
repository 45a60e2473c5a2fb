package vault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// Owner returns the vault owner.
func (a *Accounting) Owner() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}

// Strategist returns the current strategist.
func (a *Accounting) Strategist() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.strategist
}

// IsWhitelisted reports whether addr may settle trades on this vault.
func (a *Accounting) IsWhitelisted(addr common.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.whitelist[addr]
}

// AddToWhiteList grants addr trade rights. Strategist only.
func (a *Accounting) AddToWhiteList(ctx context.Context, caller, addr common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.strategist {
		return fmt.Errorf("vault %s: add to whitelist: %w", a.id, domain.ErrNotAuthorized)
	}
	a.whitelist[addr] = true

	a.logger.InfoContext(ctx, "whitelist updated", slog.String("added", addr.Hex()))
	a.sink.Emit(ctx, a.id, domain.WhiteListAddedEvent{Addr: addr})
	return nil
}

// RemoveFromWhiteList revokes addr's trade rights. Strategist only.
func (a *Accounting) RemoveFromWhiteList(ctx context.Context, caller, addr common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.strategist {
		return fmt.Errorf("vault %s: remove from whitelist: %w", a.id, domain.ErrNotAuthorized)
	}
	delete(a.whitelist, addr)

	a.logger.InfoContext(ctx, "whitelist updated", slog.String("removed", addr.Hex()))
	a.sink.Emit(ctx, a.id, domain.WhiteListRemovedEvent{Addr: addr})
	return nil
}

// SetStrategist replaces the strategist. Owner only.
func (a *Accounting) SetStrategist(ctx context.Context, caller, strategist common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.owner {
		return fmt.Errorf("vault %s: set strategist: %w", a.id, domain.ErrNotAuthorized)
	}
	a.strategist = strategist

	a.logger.InfoContext(ctx, "strategist updated", slog.String("strategist", strategist.Hex()))
	a.sink.Emit(ctx, a.id, domain.StrategistUpdatedEvent{Strategist: strategist})
	return nil
}

// SetPartnerAddress sets or clears the partner fee recipient. Owner only.
// The zero address disables the partner share.
func (a *Accounting) SetPartnerAddress(ctx context.Context, caller, partner common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.owner {
		return fmt.Errorf("vault %s: set partner address: %w", a.id, domain.ErrNotAuthorized)
	}
	a.params.Fees.AddrPartner = partner

	a.logger.InfoContext(ctx, "partner address updated", slog.String("partner", partner.Hex()))
	return nil
}
