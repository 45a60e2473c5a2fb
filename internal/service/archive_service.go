package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/upvault/vaultd/internal/domain"
)

// ArchiveService moves aged trade and event rows to cold storage on a fixed
// schedule. Like the snapshot job it is single-flight across replicas.
type ArchiveService struct {
	archiver  domain.Archiver
	locks     domain.LockManager
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

const archiveLockKey = "lock:archive"

// NewArchiveService creates an ArchiveService. locks may be nil.
func NewArchiveService(
	archiver domain.Archiver,
	locks domain.LockManager,
	retention, interval time.Duration,
	logger *slog.Logger,
) *ArchiveService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ArchiveService{
		archiver:  archiver,
		locks:     locks,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "archive_service")),
	}
}

// Run archives on a fixed interval until ctx is cancelled. Call in a
// goroutine.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.ArchiveOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "archive_service: archive run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ArchiveOnce archives everything older than the retention horizon. When
// another replica holds the archive lock the run is skipped silently.
func (s *ArchiveService) ArchiveOnce(ctx context.Context) error {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, archiveLockKey, s.interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil
			}
			return err
		}
		defer unlock()
	}

	before := time.Now().UTC().Add(-s.retention)

	trades, err := s.archiver.ArchiveTrades(ctx, before)
	if err != nil {
		return err
	}
	events, err := s.archiver.ArchiveEvents(ctx, before)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "archive_service: archive complete",
		slog.Time("before", before),
		slog.Int64("trades", trades),
		slog.Int64("events", events),
	)
	return nil
}
