package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashverse/flashcore/internal/domain"
)

// Resolve finalizes a market's outcome and settles every open position
// against it. The proof may be nil, in which case only the consensus path is
// attempted. Resolution is exactly-once: a resolved market returns
// ErrMarketResolved and is never re-settled. When both resolution paths fail
// the market transitions to disputed and waits for governance.
func (e *Engine) Resolve(ctx context.Context, marketID string, proof *domain.ResolutionProof) (domain.Settlement, error) {
	var settlement domain.Settlement
	err := e.withMarketLock(ctx, marketID, func(ctx context.Context) error {
		m, err := e.loadMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("engine: resolve: load market %s: %w", marketID, err)
		}
		switch m.Status {
		case domain.MarketStatusResolved:
			return fmt.Errorf("engine: resolve: market %s: %w", marketID, domain.ErrMarketResolved)
		case domain.MarketStatusOpen:
			if m.TimeLeft > 0 {
				return fmt.Errorf("engine: resolve: market %s still trading: %w", marketID, domain.ErrMarketNotOpen)
			}
			m.Status = domain.MarketStatusResolving
		}

		decision, err := e.resolver.Resolve(ctx, &m, proof)
		if err != nil {
			if errors.Is(err, domain.ErrQuorumNotReached) {
				m.Status = domain.MarketStatusDisputed
				if saveErr := e.saveMarket(ctx, m); saveErr != nil {
					return fmt.Errorf("engine: resolve: mark disputed: %w", saveErr)
				}
				e.auditEvent(ctx, "market.disputed", map[string]any{"market_id": marketID})
			}
			return err
		}

		settlement, err = e.settle(ctx, &m, decision.Outcome, decision.Path, decision.ProofHash)
		return err
	})
	if err != nil {
		return domain.Settlement{}, err
	}
	return settlement, nil
}

// settle computes payouts, persists the settlement, and flips the market to
// resolved. Requires the market lock held.
func (e *Engine) settle(ctx context.Context, m *domain.Market, outcome int, path domain.ResolutionPath, proofHash []byte) (domain.Settlement, error) {
	open, err := e.positions.ListOpenByMarket(ctx, m.ID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("engine: settle %s: list positions: %w", m.ID, err)
	}

	now := time.Now().UTC()
	settlement := domain.Settlement{
		MarketID:   m.ID,
		Outcome:    outcome,
		Path:       path,
		ProofHash:  proofHash,
		ResolvedAt: now,
	}
	for i := range open {
		pos := open[i]
		pos.Status = domain.PositionStatusClosed
		pos.ClosedAt = &now
		if pos.OutcomeIndex == outcome {
			pos.Payout = pos.Stake * pos.EffectiveLeverage * pos.EntryOdds
		} else {
			pos.Payout = 0
		}
		if err := e.positions.Update(ctx, pos); err != nil {
			return domain.Settlement{}, fmt.Errorf("engine: settle %s: close position %s: %w", m.ID, pos.ID, err)
		}
		if pos.Payout > 0 {
			settlement.Payouts = append(settlement.Payouts, domain.Payout{
				PositionID: pos.ID,
				Owner:      pos.Owner,
				Amount:     pos.Payout,
			})
		}
	}

	if err := e.settlements.Create(ctx, settlement); err != nil {
		return domain.Settlement{}, fmt.Errorf("engine: settle %s: persist settlement: %w", m.ID, err)
	}

	m.Status = domain.MarketStatusResolved
	m.WinningOutcome = outcome
	m.ProofHash = proofHash
	m.ResolutionPath = path
	m.ResolvedAt = &now
	m.TimeLeft = 0
	m.Tau = 0
	if err := e.saveMarket(ctx, *m); err != nil {
		return domain.Settlement{}, fmt.Errorf("engine: settle %s: save market: %w", m.ID, err)
	}

	if e.ledger != nil {
		if err := e.ledger.EmitSettlement(ctx, settlement); err != nil {
			// The settlement is durable in the store with a nil emitted_at;
			// FlushLedger re-emits it on the next ledger sweep.
			e.logger.WarnContext(ctx, "engine: ledger emit failed, deferred to sweep",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		} else {
			e.markEmitted(ctx, m.ID, now)
			settlement.EmittedAt = &now
		}
	}

	e.auditEvent(ctx, "market.resolved", map[string]any{
		"market_id": m.ID,
		"outcome":   outcome,
		"path":      string(path),
		"payouts":   len(settlement.Payouts),
	})
	e.logger.InfoContext(ctx, "engine: market settled",
		slog.String("market_id", m.ID),
		slog.Int("outcome", outcome),
		slog.String("path", string(path)),
		slog.Int("payouts", len(settlement.Payouts)),
	)
	return settlement, nil
}

func (e *Engine) markEmitted(ctx context.Context, marketID string, at time.Time) {
	if err := e.settlements.MarkEmitted(ctx, marketID, at); err != nil {
		// Worst case the sweep emits the record a second time; consumers
		// dedupe on market id.
		e.logger.WarnContext(ctx, "engine: mark settlement emitted failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// FlushLedger re-emits settlements that were persisted but never reached the
// ledger stream, oldest first. Returns the number delivered.
func (e *Engine) FlushLedger(ctx context.Context) (int, error) {
	if e.ledger == nil {
		return 0, nil
	}
	pending, err := e.settlements.ListUnemitted(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("engine: flush ledger: %w", err)
	}

	flushed := 0
	for i := range pending {
		st := pending[i]
		if err := e.ledger.EmitSettlement(ctx, st); err != nil {
			e.logger.WarnContext(ctx, "engine: ledger re-emit failed",
				slog.String("market_id", st.MarketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.markEmitted(ctx, st.MarketID, time.Now().UTC())
		flushed++
	}
	return flushed, nil
}

// Reclaim archives and deletes resolved markets whose dispute window has
// elapsed. Disputed markets are never reclaimed; they hold their full state
// until governance resolves them.
func (e *Engine) Reclaim(ctx context.Context) (int, error) {
	resolved, err := e.markets.ListByStatus(ctx, domain.MarketStatusResolved, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("engine: reclaim: %w", err)
	}

	cutoff := time.Now().UTC().Add(-DisputeWindow)
	reclaimed := 0
	for i := range resolved {
		m := resolved[i]
		if m.ResolvedAt == nil || m.ResolvedAt.After(cutoff) {
			continue
		}
		if err := e.reclaimOne(ctx, m); err != nil {
			e.logger.WarnContext(ctx, "engine: reclaim failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.forgetMarket(m.ID)
		reclaimed++
	}
	return reclaimed, nil
}

func (e *Engine) reclaimOne(ctx context.Context, m domain.Market) error {
	return e.withMarketLock(ctx, m.ID, func(ctx context.Context) error {
		if e.archiver != nil {
			settlement, err := e.settlements.GetByMarket(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("load settlement: %w", err)
			}
			// Archive before delete: a market is only reclaimed once its
			// history is durable elsewhere.
			if err := e.archiver.ArchiveMarket(ctx, m, settlement); err != nil {
				return fmt.Errorf("archive: %w", err)
			}
		}
		if err := e.markets.Delete(ctx, m.ID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if e.cache != nil {
			if err := e.cache.DeleteMarket(ctx, m.ID); err != nil {
				e.logger.WarnContext(ctx, "engine: cache delete failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		e.auditEvent(ctx, "market.reclaimed", map[string]any{"market_id": m.ID})
		e.logger.InfoContext(ctx, "engine: market reclaimed", slog.String("market_id", m.ID))
		return nil
	})
}
