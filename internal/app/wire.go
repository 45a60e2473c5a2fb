package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/upvault/vaultd/internal/aggregator"
	s3blob "github.com/upvault/vaultd/internal/blob/s3"
	"github.com/upvault/vaultd/internal/cache/redis"
	"github.com/upvault/vaultd/internal/config"
	"github.com/upvault/vaultd/internal/domain"
	"github.com/upvault/vaultd/internal/factory"
	"github.com/upvault/vaultd/internal/ledger"
	"github.com/upvault/vaultd/internal/notify"
	"github.com/upvault/vaultd/internal/oracle"
	"github.com/upvault/vaultd/internal/service"
	"github.com/upvault/vaultd/internal/store/postgres"
	"github.com/upvault/vaultd/internal/supervault"
	"github.com/upvault/vaultd/internal/vault"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	TradeStore    domain.TradeStore
	EventStore    domain.VaultEventStore
	SnapshotStore domain.SnapshotStore
	AuditStore    domain.AuditStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	StateCache  domain.VaultStateCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Engines
	Registry   *factory.Factory
	Supervault *supervault.Supervault
	Bank       *ledger.Bank
	Exchange   *ledger.Exchange
	Feeds      map[string]domain.PriceFeed // feed ID -> feed
	Bindings   []FeedBinding               // asset -> feed, for the price sync loop

	// Services
	VaultService *service.VaultService

	// Notifications
	Notifier *notify.Notifier
}

// FeedBinding pairs an asset with the feed that prices it.
type FeedBinding struct {
	Asset domain.Asset
	Feed  domain.PriceFeed
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled || cfg.Mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Feeds: make(map[string]domain.PriceFeed),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)
	deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.StateCache = redis.NewStateCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.TradeStore,
			deps.EventStore,
			deps.AuditStore,
		)
	}

	// --- Chain feeds ---
	ethClient, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: eth rpc: %w", err)
	}
	closers = append(closers, ethClient.Close)

	// feedFor builds one cached Chainlink feed per aggregator address,
	// de-duplicated so vaults sharing a feed share the reader.
	feedFor := func(addr string) (domain.PriceFeed, error) {
		if f, ok := deps.Feeds[addr]; ok {
			return f, nil
		}
		cl, err := oracle.NewChainlink(ethClient, common.HexToAddress(addr))
		if err != nil {
			return nil, err
		}
		f := oracle.NewCached(cl, deps.PriceCache, addr, 30*time.Second, logger)
		deps.Feeds[addr] = f
		return f, nil
	}

	// --- Aggregator quoter ---
	var quoter domain.Quoter
	if cfg.Aggregator.ZeroExAPIKey != "" {
		quoter = aggregator.NewZeroExClient(cfg.Aggregator.ZeroExHost, cfg.Aggregator.ZeroExAPIKey)
	} else if cfg.Aggregator.OneInchKey != "" {
		quoter = aggregator.NewOneInchClient(cfg.Aggregator.OneInchHost, cfg.Aggregator.OneInchKey, cfg.Chain.ChainID)
	}

	// --- Execution substrate ---
	// The reference model settles against an in-process ledger and exchange;
	// the exchange doubles as quoter when no aggregator credentials are set.
	deps.Bank = ledger.NewBank()
	deps.Exchange = ledger.NewExchange(deps.Bank)
	if quoter == nil {
		quoter = deps.Exchange
	}

	// --- Event recorder and vault factory ---
	recorder := service.NewRecorder(deps.EventStore, deps.SignalBus, logger)
	deps.Registry = factory.New(recorder, logger)

	for i, vc := range cfg.Vaults {
		params, err := vaultParams(cfg, vc)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: vault %d (%s): %w", i, vc.Name, err)
		}
		quoteFeed, err := feedFor(vc.QuoteFeed)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: vault %s quote feed: %w", vc.Name, err)
		}
		baseFeed, err := feedFor(vc.BaseFeed)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: vault %s base feed: %w", vc.Name, err)
		}
		deps.bindFeed(params.QuoteAsset, quoteFeed)
		deps.bindFeed(params.BaseAsset, baseFeed)

		v, err := deps.Registry.Generate(ctx,
			common.HexToAddress(vc.Owner),
			common.HexToAddress(vc.Strategist),
			params,
			vault.Deps{
				Ledger:    deps.Bank,
				QuoteFeed: quoteFeed,
				BaseFeed:  baseFeed,
				Router:    deps.Exchange,
				Executor:  deps.Exchange,
				Sink:      recorder,
				Logger:    logger,
			},
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: generate vault %s: %w", vc.Name, err)
		}

		for _, w := range vc.WhiteList {
			if err := v.AddToWhiteList(ctx, common.HexToAddress(vc.Strategist), common.HexToAddress(w)); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: whitelist vault %s: %w", vc.Name, err)
			}
		}
	}

	// --- Supervault ---
	if cfg.Supervault.Enabled {
		vaults := deps.Registry.List()
		children := make([]supervault.Child, len(vaults))
		for i, v := range vaults {
			children[i] = v
		}
		first := cfg.Vaults[0]
		svUUID := uuid.New()
		sv, err := supervault.New(svUUID.String(),
			common.BytesToAddress(svUUID[:]),
			common.HexToAddress(first.Owner),
			common.HexToAddress(first.Strategist),
			children,
			cfg.Supervault.Active,
			deps.Bank,
			recorder,
			logger,
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: supervault: %w", err)
		}
		deps.Supervault = sv
	}

	// --- Services ---
	deps.VaultService = service.NewVaultService(
		deps.Registry,
		quoter,
		deps.TradeStore,
		deps.EventStore,
		deps.StateCache,
		deps.AuditStore,
		deps.SignalBus,
		logger,
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// vaultParams translates one vault's config section into engine parameters,
// merging in the global fee schedule.
func vaultParams(cfg *config.Config, vc config.VaultConfig) (domain.VaultParams, error) {
	maxCap, ok := new(big.Int).SetString(vc.MaxCap, 10)
	if !ok {
		return domain.VaultParams{}, fmt.Errorf("bad max_cap %q", vc.MaxCap)
	}

	fees := domain.FeeParams{
		PctDeposit:      cfg.Fees.PctDeposit,
		PctWithdraw:     cfg.Fees.PctWithdraw,
		PctPerfBurning:  cfg.Fees.PctPerfBurning,
		PctPerfStakers:  cfg.Fees.PctPerfStakers,
		PctPerfAlgoDev:  cfg.Fees.PctPerfAlgoDev,
		PctPerfUpbots:   cfg.Fees.PctPerfUpbots,
		PctPerfPartners: cfg.Fees.PctPerfPartners,
		PctTradeFee:     cfg.Fees.PctTradeFee,
		AddrStakers:     common.HexToAddress(cfg.Fees.AddrStakers),
		AddrAlgoDev:     common.HexToAddress(cfg.Fees.AddrAlgoDev),
		AddrUpbots:      common.HexToAddress(cfg.Fees.AddrUpbots),
	}
	if vc.Partner != "" {
		fees.AddrPartner = common.HexToAddress(vc.Partner)
	}

	params := domain.VaultParams{
		Name:                vc.Name,
		QuoteAsset:          asset(vc.QuoteToken),
		BaseAsset:           asset(vc.BaseToken),
		MaxCap:              maxCap,
		MaxSlippageBuyBps:   vc.MaxSlippageBuyBps,
		MaxSlippageSellBps:  vc.MaxSlippageSellBps,
		ValuationHaircutBps: vc.ValuationHaircutBps,
		PerfPartnerFallback: cfg.Fees.PartnerFallback,
		Fees:                fees,
	}
	if vc.RewardToken.Address != "" {
		params.RewardAsset = asset(vc.RewardToken)
		params.SwapPath = []common.Address{
			params.QuoteAsset.Address,
			params.RewardAsset.Address,
		}
	}
	return params, nil
}

// bindFeed records an asset/feed pair for the price sync loop, skipping
// assets already bound.
func (d *Dependencies) bindFeed(a domain.Asset, f domain.PriceFeed) {
	for _, b := range d.Bindings {
		if b.Asset.Equal(a) {
			return
		}
	}
	d.Bindings = append(d.Bindings, FeedBinding{Asset: a, Feed: f})
}

func asset(t config.TokenConfig) domain.Asset {
	return domain.Asset{
		Address:  common.HexToAddress(t.Address),
		Symbol:   t.Symbol,
		Decimals: uint8(t.Decimals),
	}
}
