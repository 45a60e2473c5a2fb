package domain

import "errors"

var (
	// ErrNotAuthorized means the caller lacks the whitelist or strategist role.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrWrongPositionState means buy/sell was attempted in an incompatible
	// position state (buy while open, sell while closed).
	ErrWrongPositionState = errors.New("wrong position state")
	// ErrSlippageExceeded means the quoted swap output fell below the
	// feed-implied minimum. Recoverable by re-quoting with fresh data.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrMaxCapExceeded means the deposit would push the pool past its cap.
	ErrMaxCapExceeded = errors.New("max cap exceeded")
	// ErrInsufficientShares means the caller tried to burn more shares than held.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInsufficientBalance means a ledger transfer exceeds the source balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance means a pull transfer exceeds the approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrLockHeld means a distributed lock is owned by another holder.
	ErrLockHeld = errors.New("lock held")
)
