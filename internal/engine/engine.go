// Package engine orchestrates the flash market lifecycle: creation, quoting,
// position opens, expiry, resolution, settlement, and storage reclamation.
// All state transitions for one market are serialized through a per-market
// lock, so the rest of the system can treat markets as single-writer.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flashverse/flashcore/internal/chain"
	"github.com/flashverse/flashcore/internal/domain"
	"github.com/flashverse/flashcore/internal/resolver"
	"github.com/flashverse/flashcore/internal/risk"
)

const (
	// DisputeWindow is how long a resolved market's full state is retained
	// before reclamation.
	DisputeWindow = 300 * time.Second

	// marketLockTTL bounds the cross-instance lock held during a market
	// mutation.
	marketLockTTL = 5 * time.Second
)

// Deps wires the engine's collaborators. Markets, Positions, Settlements,
// Risk, and Chain are required; the rest degrade gracefully when nil.
type Deps struct {
	Markets     domain.MarketStore
	Positions   domain.PositionStore
	Settlements domain.SettlementStore
	Audit       domain.AuditStore
	Cache       domain.MarketCache
	Locks       domain.LockManager
	Risk        *risk.Controller
	Chain       *chain.Executor
	Resolver    *resolver.Resolver
	Ledger      domain.Ledger
	Archiver    domain.Archiver
	Logger      *slog.Logger
}

// Engine is the market lifecycle coordinator.
type Engine struct {
	markets     domain.MarketStore
	positions   domain.PositionStore
	settlements domain.SettlementStore
	audit       domain.AuditStore
	cache       domain.MarketCache
	locks       domain.LockManager
	risk        *risk.Controller
	chain       *chain.Executor
	resolver    *resolver.Resolver
	ledger      domain.Ledger
	archiver    domain.Archiver
	logger      *slog.Logger

	// marketMu holds one *sync.Mutex per market id for in-process
	// serialization. The distributed lock manager extends the same guarantee
	// across instances.
	marketMu sync.Map
}

// New creates an Engine from its dependency set.
func New(d Deps) *Engine {
	return &Engine{
		markets:     d.Markets,
		positions:   d.Positions,
		settlements: d.Settlements,
		audit:       d.Audit,
		cache:       d.Cache,
		locks:       d.Locks,
		risk:        d.Risk,
		chain:       d.Chain,
		resolver:    d.Resolver,
		ledger:      d.Ledger,
		archiver:    d.Archiver,
		logger:      d.Logger.With(slog.String("component", "engine")),
	}
}

// withMarketLock runs fn while holding both the in-process mutex and, when a
// lock manager is configured, the cross-instance lock for the market.
func (e *Engine) withMarketLock(ctx context.Context, marketID string, fn func(ctx context.Context) error) error {
	muAny, _ := e.marketMu.LoadOrStore(marketID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if e.locks != nil {
		release, err := e.locks.Acquire(ctx, "market:"+marketID, marketLockTTL)
		if err != nil {
			return err
		}
		defer release()
	}
	return fn(ctx)
}

// forgetMarket drops per-market lock state after reclamation.
func (e *Engine) forgetMarket(marketID string) {
	e.marketMu.Delete(marketID)
}

// loadMarket reads through the cache when one is configured.
func (e *Engine) loadMarket(ctx context.Context, id string) (domain.Market, error) {
	if e.cache != nil {
		if m, err := e.cache.GetMarket(ctx, id); err == nil {
			return m, nil
		}
	}
	return e.markets.GetByID(ctx, id)
}

// saveMarket persists a market and refreshes the cache.
func (e *Engine) saveMarket(ctx context.Context, m domain.Market) error {
	if err := e.markets.Upsert(ctx, m); err != nil {
		return err
	}
	if e.cache != nil {
		if err := e.cache.SetMarket(ctx, m); err != nil {
			e.logger.WarnContext(ctx, "engine: cache set failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (e *Engine) auditEvent(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "engine: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
