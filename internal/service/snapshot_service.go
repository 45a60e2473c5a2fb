package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/factory"
)

// SnapshotService periodically records the state of every registered vault
// to the snapshot store and refreshes the state cache. A distributed lock
// keeps the job single-flight when multiple replicas run.
type SnapshotService struct {
	registry  *factory.Factory
	snapshots domain.SnapshotStore
	states    domain.VaultStateCache
	locks     domain.LockManager
	interval  time.Duration
	logger    *slog.Logger
}

const snapshotLockKey = "lock:snapshot"

// NewSnapshotService creates a SnapshotService. states and locks may be nil.
func NewSnapshotService(
	registry *factory.Factory,
	snapshots domain.SnapshotStore,
	states domain.VaultStateCache,
	locks domain.LockManager,
	interval time.Duration,
	logger *slog.Logger,
) *SnapshotService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SnapshotService{
		registry:  registry,
		snapshots: snapshots,
		states:    states,
		locks:     locks,
		interval:  interval,
		logger:    logger.With(slog.String("component", "snapshot_service")),
	}
}

// Run snapshots on a fixed interval until ctx is cancelled. Call in a
// goroutine.
func (s *SnapshotService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SnapshotAll(ctx); err != nil {
				s.logger.ErrorContext(ctx, "snapshot_service: snapshot run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// SnapshotAll records one snapshot per vault. When another replica holds the
// snapshot lock the run is skipped silently.
func (s *SnapshotService) SnapshotAll(ctx context.Context) error {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, snapshotLockKey, s.interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil
			}
			return err
		}
		defer unlock()
	}

	for _, v := range s.registry.List() {
		state, err := v.State(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "snapshot_service: compute state failed",
				slog.String("vault_id", v.ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.snapshots.Insert(ctx, state); err != nil {
			s.logger.ErrorContext(ctx, "snapshot_service: persist snapshot failed",
				slog.String("vault_id", v.ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if s.states != nil {
			if err := s.states.SetState(ctx, state); err != nil {
				s.logger.WarnContext(ctx, "snapshot_service: state cache set failed",
					slog.String("vault_id", v.ID()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.DebugContext(ctx, "snapshot_service: snapshot complete",
		slog.Int("vaults", s.registry.Count()),
	)
	return nil
}
