// Package supervault aggregates deposits across a set of child vaults.
// Depositors hold supervault shares; the supervault in turn holds shares in
// each child, splitting new capital equally across the currently active
// children. The supervault itself charges no fees: children apply their own
// deposit, withdraw, and performance schedules.
package supervault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upvault/vaultd/internal/domain"
)

// Child is the surface the supervault needs from a vault. It is satisfied by
// *vault.Accounting.
type Child interface {
	ID() string
	Address() common.Address
	Params() domain.VaultParams
	DepositQuote(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error)
	WithdrawQuote(ctx context.Context, caller common.Address, shares *big.Int) (*big.Int, error)
	SharesOf(addr common.Address) *big.Int
	EstimatedDeposit(ctx context.Context, addr common.Address) (*big.Int, error)
	EstimatedPoolSize(ctx context.Context) (*big.Int, error)
}

// Supervault distributes one quote-asset deposit stream across child vaults.
type Supervault struct {
	mu sync.Mutex

	id         string
	addr       common.Address
	quote      domain.Asset
	owner      common.Address
	strategist common.Address

	children []Child
	active   []int

	totalShares *big.Int
	shares      map[common.Address]*big.Int

	ledger domain.TokenLedger
	sink   domain.EventSink
	logger *slog.Logger
}

type noopSink struct{}

func (noopSink) Emit(context.Context, string, domain.Event) {}

// New builds a supervault over children, all of which must share the same
// quote asset. active holds the child indices that receive new deposits.
func New(id string, addr, owner, strategist common.Address, children []Child, active []int, ledger domain.TokenLedger, sink domain.EventSink, logger *slog.Logger) (*Supervault, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("supervault %s: no children", id)
	}
	quote := children[0].Params().QuoteAsset
	for _, c := range children[1:] {
		if !c.Params().QuoteAsset.Equal(quote) {
			return nil, fmt.Errorf("supervault %s: child %s quote asset mismatch", id, c.ID())
		}
	}
	if err := validateActive(active, len(children)); err != nil {
		return nil, fmt.Errorf("supervault %s: %w", id, err)
	}
	if sink == nil {
		sink = noopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervault{
		id:          id,
		addr:        addr,
		quote:       quote,
		owner:       owner,
		strategist:  strategist,
		children:    children,
		active:      append([]int(nil), active...),
		totalShares: new(big.Int),
		shares:      make(map[common.Address]*big.Int),
		ledger:      ledger,
		sink:        sink,
		logger:      logger.With(slog.String("component", "supervault"), slog.String("vault_id", id)),
	}, nil
}

func validateActive(active []int, n int) error {
	if len(active) == 0 {
		return fmt.Errorf("empty active vault set")
	}
	seen := make(map[int]bool, len(active))
	for _, i := range active {
		if i < 0 || i >= n {
			return fmt.Errorf("active vault index %d out of range", i)
		}
		if seen[i] {
			return fmt.Errorf("duplicate active vault index %d", i)
		}
		seen[i] = true
	}
	return nil
}

// ID returns the supervault identifier.
func (s *Supervault) ID() string { return s.id }

// Address returns the supervault's ledger account.
func (s *Supervault) Address() common.Address { return s.addr }

// ActiveVaults returns a copy of the active child index set.
func (s *Supervault) ActiveVaults() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.active...)
}

// poolSizeLocked sums the supervault's stake value across every child, not
// just the active set: deactivated children still hold prior capital.
func (s *Supervault) poolSizeLocked(ctx context.Context) (*big.Int, error) {
	total := new(big.Int)
	for _, c := range s.children {
		v, err := c.EstimatedDeposit(ctx, s.addr)
		if err != nil {
			return nil, fmt.Errorf("supervault %s: child %s: %w", s.id, c.ID(), err)
		}
		total.Add(total, v)
	}
	return total, nil
}

// splitDeposit divides amount equally across n slices, any division
// remainder going to the first.
func splitDeposit(amount *big.Int, n int) []*big.Int {
	part := new(big.Int).Quo(amount, big.NewInt(int64(n)))
	rem := new(big.Int).Mod(amount, big.NewInt(int64(n)))
	slices := make([]*big.Int, n)
	for i := range slices {
		slices[i] = new(big.Int).Set(part)
		if i == 0 {
			slices[i].Add(slices[i], rem)
		}
	}
	return slices
}

// childStake records shares a deposit call minted in one child, so a failed
// later sub-deposit can be unwound.
type childStake struct {
	child  Child
	shares *big.Int
}

// unwindLocked reverses the sub-deposits of a failed Deposit call: each
// child stake placed so far is redeemed back into the supervault account,
// and whatever the account then holds is returned to the caller. Child fees
// already paid out are not recoverable, but no capital stays stranded and no
// supervault shares exist for the failed call.
func (s *Supervault) unwindLocked(ctx context.Context, caller common.Address, placed []childStake) {
	for _, p := range placed {
		if _, err := p.child.WithdrawQuote(ctx, s.addr, p.shares); err != nil {
			s.logger.ErrorContext(ctx, "deposit unwind failed",
				slog.String("child", p.child.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
	refund := s.ledger.BalanceOf(s.quote, s.addr)
	if refund.Sign() == 0 {
		return
	}
	if err := s.ledger.TransferOut(ctx, s.quote, s.addr, caller, refund); err != nil {
		s.logger.ErrorContext(ctx, "deposit refund failed",
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// Deposit pulls amount of the quote asset from the caller and splits it
// equally across the active children, any division remainder going to the
// first. Every child's max cap is checked before any capital moves; if a
// sub-deposit still fails, the slices already placed are unwound and the
// caller refunded. Supervault shares are minted against the aggregate pool
// value measured before the deposit lands.
func (s *Supervault) Deposit(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("supervault %s: deposit: %w", s.id, domain.ErrInvalidAmount)
	}

	poolBefore, err := s.poolSizeLocked(ctx)
	if err != nil {
		return nil, err
	}

	slices := splitDeposit(amount, len(s.active))

	// Cap gate across the whole active set before anything moves.
	for i, idx := range s.active {
		if slices[i].Sign() == 0 {
			continue
		}
		child := s.children[idx]
		pool, err := child.EstimatedPoolSize(ctx)
		if err != nil {
			return nil, fmt.Errorf("supervault %s: child %s pool size: %w", s.id, child.ID(), err)
		}
		if new(big.Int).Add(pool, slices[i]).Cmp(child.Params().MaxCap) > 0 {
			return nil, fmt.Errorf("supervault %s: child %s deposit: %w", s.id, child.ID(), domain.ErrMaxCapExceeded)
		}
	}

	if err := s.ledger.TransferIn(ctx, s.quote, caller, s.addr, amount); err != nil {
		return nil, fmt.Errorf("supervault %s: deposit: %w", s.id, err)
	}

	var placed []childStake
	for i, idx := range s.active {
		child := s.children[idx]
		slice := slices[i]
		if slice.Sign() == 0 {
			continue
		}
		if err := s.ledger.Approve(ctx, s.quote, s.addr, child.Address(), slice); err != nil {
			s.unwindLocked(ctx, caller, placed)
			return nil, fmt.Errorf("supervault %s: approve child %s: %w", s.id, child.ID(), err)
		}
		minted, err := child.DepositQuote(ctx, s.addr, slice)
		if err != nil {
			s.unwindLocked(ctx, caller, placed)
			return nil, fmt.Errorf("supervault %s: child %s deposit: %w", s.id, child.ID(), err)
		}
		placed = append(placed, childStake{child: child, shares: minted})
	}

	var minted *big.Int
	if s.totalShares.Sign() == 0 {
		minted = new(big.Int).Set(amount)
	} else {
		minted = new(big.Int).Mul(amount, s.totalShares)
		minted.Quo(minted, poolBefore)
	}
	bal, ok := s.shares[caller]
	if !ok {
		bal = new(big.Int)
		s.shares[caller] = bal
	}
	bal.Add(bal, minted)
	s.totalShares.Add(s.totalShares, minted)

	s.logger.InfoContext(ctx, "deposit settled",
		slog.String("depositor", caller.Hex()),
		slog.String("amount", amount.String()),
		slog.String("shares", minted.String()),
	)
	s.sink.Emit(ctx, s.id, domain.DepositedEvent{
		Depositor:    caller,
		Asset:        s.quote.String(),
		Amount:       new(big.Int).Set(amount),
		SharesMinted: new(big.Int).Set(minted),
	})

	return minted, nil
}

// Withdraw burns supervault shares and redeems the proportional slice of the
// supervault's stake in every child, active or not, paying the caller in the
// quote asset.
func (s *Supervault) Withdraw(ctx context.Context, caller common.Address, shares *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shares == nil || shares.Sign() <= 0 {
		return nil, fmt.Errorf("supervault %s: withdraw: %w", s.id, domain.ErrInvalidAmount)
	}
	bal, ok := s.shares[caller]
	if !ok || shares.Cmp(bal) > 0 {
		return nil, fmt.Errorf("supervault %s: withdraw: %w", s.id, domain.ErrInsufficientShares)
	}

	redeemed := new(big.Int)
	for _, c := range s.children {
		held := c.SharesOf(s.addr)
		if held.Sign() == 0 {
			continue
		}
		burn := new(big.Int).Mul(held, shares)
		burn.Quo(burn, s.totalShares)
		if burn.Sign() == 0 {
			continue
		}
		out, err := c.WithdrawQuote(ctx, s.addr, burn)
		if err != nil {
			return nil, fmt.Errorf("supervault %s: child %s withdraw: %w", s.id, c.ID(), err)
		}
		redeemed.Add(redeemed, out)
	}

	if redeemed.Sign() > 0 {
		if err := s.ledger.TransferOut(ctx, s.quote, s.addr, caller, redeemed); err != nil {
			return nil, fmt.Errorf("supervault %s: withdraw payout: %w", s.id, err)
		}
	}

	bal.Sub(bal, shares)
	if bal.Sign() == 0 {
		delete(s.shares, caller)
	}
	s.totalShares.Sub(s.totalShares, shares)

	s.logger.InfoContext(ctx, "withdraw settled",
		slog.String("withdrawer", caller.Hex()),
		slog.String("amount", redeemed.String()),
		slog.String("shares", shares.String()),
	)
	s.sink.Emit(ctx, s.id, domain.WithdrawnEvent{
		Withdrawer:   caller,
		Asset:        s.quote.String(),
		Amount:       new(big.Int).Set(redeemed),
		SharesBurned: new(big.Int).Set(shares),
	})

	return redeemed, nil
}

// UpdateActiveVaults replaces the active child set. Strategist only. Capital
// stays where it is: existing stakes in deactivated children remain until
// withdrawn, only the routing of new deposits changes.
func (s *Supervault) UpdateActiveVaults(ctx context.Context, caller common.Address, active []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.strategist {
		return fmt.Errorf("supervault %s: update active vaults: %w", s.id, domain.ErrNotAuthorized)
	}
	if err := validateActive(active, len(s.children)); err != nil {
		return fmt.Errorf("supervault %s: %w", s.id, err)
	}
	s.active = append([]int(nil), active...)

	s.logger.InfoContext(ctx, "active vaults updated", slog.Any("active", active))
	s.sink.Emit(ctx, s.id, domain.ActiveVaultsUpdatedEvent{ActiveVaults: append([]int(nil), active...)})
	return nil
}

// SetStrategist replaces the strategist. Owner only.
func (s *Supervault) SetStrategist(ctx context.Context, caller, strategist common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.owner {
		return fmt.Errorf("supervault %s: set strategist: %w", s.id, domain.ErrNotAuthorized)
	}
	s.strategist = strategist
	s.sink.Emit(ctx, s.id, domain.StrategistUpdatedEvent{Strategist: strategist})
	return nil
}

// EstimatedPoolSize values the supervault's aggregate stake in quote terms.
func (s *Supervault) EstimatedPoolSize(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolSizeLocked(ctx)
}

// EstimatedDeposit returns the proportional quote value of addr's shares.
func (s *Supervault) EstimatedDeposit(ctx context.Context, addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.shares[addr]
	if !ok || s.totalShares.Sign() == 0 {
		return new(big.Int), nil
	}
	pool, err := s.poolSizeLocked(ctx)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).Mul(pool, bal)
	return v.Quo(v, s.totalShares), nil
}

// SharesOf returns addr's supervault share balance.
func (s *Supervault) SharesOf(addr common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal, ok := s.shares[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalShares returns the outstanding supervault share supply.
func (s *Supervault) TotalShares() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.totalShares)
}
