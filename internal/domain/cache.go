package domain

import (
	"context"
	"time"
)

// LockManager provides distributed mutual exclusion, used to keep periodic
// jobs (snapshots, archival) single-flight across replicas.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function. It returns ErrLockHeld when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates per key.
type RateLimiter interface {
	// Allow reports whether a request under key fits the sliding window,
	// counting it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// VaultStateCache holds the latest computed vault snapshots for the read
// path, so API queries do not hit the accounting engines or feeds.
type VaultStateCache interface {
	SetState(ctx context.Context, state VaultState) error
	GetState(ctx context.Context, vaultID string) (VaultState, error)
}
