package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/flashverse/flashcore/internal/blob/s3"
	"github.com/flashverse/flashcore/internal/cache/redis"
	"github.com/flashverse/flashcore/internal/chain"
	"github.com/flashverse/flashcore/internal/config"
	"github.com/flashverse/flashcore/internal/crypto"
	"github.com/flashverse/flashcore/internal/domain"
	"github.com/flashverse/flashcore/internal/engine"
	"github.com/flashverse/flashcore/internal/feed"
	"github.com/flashverse/flashcore/internal/ledger"
	"github.com/flashverse/flashcore/internal/notify"
	"github.com/flashverse/flashcore/internal/resolver"
	"github.com/flashverse/flashcore/internal/risk"
	"github.com/flashverse/flashcore/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore     domain.MarketStore
	PositionStore   domain.PositionStore
	SettlementStore domain.SettlementStore
	AuditStore      domain.AuditStore

	// Redis-backed infrastructure
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter *redis.RateLimiter

	// Core components
	Registry  *crypto.Registry
	Collector *resolver.Collector
	Resolver  *resolver.Resolver
	Risk      *risk.Controller
	Chain     *chain.Executor
	Ledger    domain.Ledger
	Archiver  domain.Archiver
	Engine    *engine.Engine
	Consumer  *feed.Consumer
	Notifier  *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)
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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- S3 market archive ---
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
	deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.AuditStore)

	// --- Attestation sources ---
	deps.Registry = crypto.NewRegistry()
	for sourceID, addr := range cfg.Signing.Sources {
		if err := deps.Registry.Register(sourceID, addr); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: register attestation source %s: %w", sourceID, err)
		}
	}

	// --- Governance alerts ---
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	// --- Resolver ---
	deps.Collector = resolver.NewCollector(deps.Registry, logger)
	var proofVerifier domain.ProofVerifier
	if cfg.Resolver.VerifierURL != "" {
		proofVerifier = resolver.NewProofClient(cfg.Resolver.VerifierURL)
	}
	deps.Resolver = resolver.NewResolver(proofVerifier, deps.Collector, deps.Notifier, logger)
	deps.Resolver.SetWindows(cfg.Resolver.ProofBudget.Duration, cfg.Resolver.ConsensusWindow.Duration)

	// --- Risk and leverage chains ---
	deps.Risk = risk.NewController(risk.Config{
		MinCollateralRatio: cfg.Risk.MinCollateralRatio,
		MaxLeverage:        cfg.Risk.MaxLeverage,
		MaxStake:           cfg.Risk.MaxStake,
	}, deps.AuditStore, logger)
	// Amplifier venues are registered per deployment; a nil map means chain
	// steps evaluate for leverage but skip venue execution.
	deps.Chain = chain.NewExecutor(nil, logger)

	// --- Settlement ledger ---
	var auth *crypto.StreamAuth
	if cfg.Ledger.StreamSecret != "" {
		auth = crypto.NewStreamAuth(cfg.Ledger.StreamSecret)
	}
	deps.Ledger = ledger.New(deps.SignalBus, auth, logger)

	// --- Engine ---
	deps.Engine = engine.New(engine.Deps{
		Markets:     deps.MarketStore,
		Positions:   deps.PositionStore,
		Settlements: deps.SettlementStore,
		Audit:       deps.AuditStore,
		Cache:       deps.MarketCache,
		Locks:       deps.LockManager,
		Risk:        deps.Risk,
		Chain:       deps.Chain,
		Resolver:    deps.Resolver,
		Ledger:      deps.Ledger,
		Archiver:    deps.Archiver,
		Logger:      logger,
	})

	// --- Feed ---
	var limiter feed.SourceLimiter
	if cfg.Feed.AttestationsPerMinute > 0 {
		limiter = deps.RateLimiter
	}
	deps.Consumer = feed.NewConsumer(cfg.Feed.WsURL, deps.Engine, deps.Collector, limiter, logger)
	deps.Consumer.SetAttestationBudget(cfg.Feed.AttestationsPerMinute)

	return deps, cleanup, nil
}
