package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// CoreMode runs the trading surface: feed consumption into the engine plus
// the market clock sweep, without storage reclamation.
func (a *App) CoreMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting core mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	a.startExpireSweep(ctx, g, deps)
	return g.Wait()
}

// SweepMode runs only the background sweeps: the market clock and resolved
// market reclamation. Useful as a sidecar next to core instances.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startExpireSweep(ctx, g, deps)
	a.startReclaimSweep(ctx, g, deps)
	a.startLedgerSweep(ctx, g, deps)
	return g.Wait()
}

// MonitorMode consumes the feed and keeps market state warm without running
// any sweeps. No positions are opened in this mode unless a caller drives
// the engine directly.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything: feed, clock sweep, and reclamation.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	a.startExpireSweep(ctx, g, deps)
	a.startReclaimSweep(ctx, g, deps)
	a.startLedgerSweep(ctx, g, deps)
	return g.Wait()
}

// startFeed subscribes to the configured markets and consumes the feed until
// ctx is cancelled.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Consumer.Run(ctx)
	})
	if len(a.cfg.Feed.Markets) > 0 {
		markets := a.cfg.Feed.Markets
		g.Go(func() error {
			// The first Dial may still be in flight; retry until the
			// subscription lands or ctx is cancelled.
			for {
				err := deps.Consumer.Subscribe(ctx, markets...)
				if err == nil {
					a.logger.InfoContext(ctx, "subscribed to configured markets",
						slog.Int("count", len(markets)),
					)
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
				}
			}
		})
	}
}

// startExpireSweep decrements market clocks between feed updates so markets
// expire even when the feed goes quiet.
func (a *App) startExpireSweep(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Sweep.ExpireInterval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				expired, err := deps.Engine.ExpireDue(ctx, interval)
				if err != nil {
					a.logger.WarnContext(ctx, "expire sweep failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if expired > 0 {
					a.logger.InfoContext(ctx, "markets expired",
						slog.Int("count", expired),
					)
				}
			}
		}
	})
}

// startLedgerSweep re-emits settlements that never reached the ledger
// stream, so a stream outage during settlement loses nothing.
func (a *App) startLedgerSweep(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Sweep.LedgerInterval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				flushed, err := deps.Engine.FlushLedger(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "ledger sweep failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if flushed > 0 {
					a.logger.InfoContext(ctx, "settlements re-emitted",
						slog.Int("count", flushed),
					)
				}
			}
		}
	})
}

// startReclaimSweep archives and deletes resolved markets past the dispute
// window.
func (a *App) startReclaimSweep(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Sweep.ReclaimInterval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				reclaimed, err := deps.Engine.Reclaim(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "reclaim sweep failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if reclaimed > 0 {
					a.logger.InfoContext(ctx, "markets reclaimed",
						slog.Int("count", reclaimed),
					)
				}
			}
		}
	})
}
