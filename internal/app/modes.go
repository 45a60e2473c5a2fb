package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/upvault/vaultd/internal/notify"
	"github.com/upvault/vaultd/internal/server"
	"github.com/upvault/vaultd/internal/server/handler"
	"github.com/upvault/vaultd/internal/server/ws"
	"github.com/upvault/vaultd/internal/service"
)

// feedSyncInterval is how often chain prices are pushed into the exchange so
// settlement and valuation use the same observations.
const feedSyncInterval = 15 * time.Second

// ServerMode runs the HTTP/WebSocket API plus the background loops that keep
// the read path fresh: the feed sync, the snapshot job, and the notifier.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)
	a.startFeedSync(ctx, g, deps)
	a.startSnapshots(ctx, g, deps)
	a.startNotifier(ctx, g, deps)

	return waitGroup(g)
}

// SnapshotMode runs only the feed sync and periodic snapshot job, for
// replicas dedicated to reporting.
func (a *App) SnapshotMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startFeedSync(ctx, g, deps)
	a.startSnapshots(ctx, g, deps)

	return waitGroup(g)
}

// ArchiveMode runs only the cold storage archival job.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires s3 configuration")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)

	return waitGroup(g)
}

// FullMode runs every component: API server, feed sync, snapshots, archival
// (when configured), and notifications.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)
	a.startFeedSync(ctx, g, deps)
	a.startSnapshots(ctx, g, deps)
	a.startNotifier(ctx, g, deps)
	if deps.Archiver != nil && a.cfg.Archive.Enabled {
		a.startArchiver(ctx, g, deps)
	}

	return waitGroup(g)
}

// startServer constructs the handlers, hub, and HTTP server and launches
// them on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		return
	}

	startedAt := time.Now().UTC()
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, deps.Registry.Count(), startedAt, a.logger),
		Vaults: handler.NewVaultHandler(deps.VaultService, a.logger),
		Trades: handler.NewTradeHandler(deps.VaultService, a.logger),
	}
	if deps.Supervault != nil {
		handlers.Supervault = handler.NewSupervaultHandler(deps.Supervault, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:       a.cfg.Mode,
		VaultCount: deps.Registry.Count(),
		StartedAt:  startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIToken:    a.cfg.Server.APIToken,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startFeedSync launches the loop that mirrors chain feed prices into the
// in-process exchange.
func (a *App) startFeedSync(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if len(deps.Bindings) == 0 {
		return
	}
	g.Go(func() error {
		return a.runFeedSync(ctx, deps)
	})
}

func (a *App) runFeedSync(ctx context.Context, deps *Dependencies) error {
	sync := func() {
		for _, b := range deps.Bindings {
			p, err := b.Feed.Latest(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "feed sync failed",
					slog.String("asset", b.Asset.Symbol),
					slog.String("error", err.Error()),
				)
				continue
			}
			deps.Exchange.SetPrice(b.Asset, p)
		}
	}

	sync()

	ticker := time.NewTicker(feedSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sync()
		}
	}
}

func (a *App) startSnapshots(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Snapshot.Enabled {
		return
	}
	snapshots := service.NewSnapshotService(
		deps.Registry,
		deps.SnapshotStore,
		deps.StateCache,
		deps.LockManager,
		a.cfg.Snapshot.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return snapshots.Run(ctx)
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	archive := service.NewArchiveService(
		deps.Archiver,
		deps.LockManager,
		retention,
		a.cfg.Archive.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return archive.Run(ctx)
	})
}

func (a *App) startNotifier(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}
	watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
}

// waitGroup blocks on the group and swallows context cancellation, which is
// the expected shutdown path.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
