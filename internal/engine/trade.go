package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flashverse/flashcore/internal/amm"
	"github.com/flashverse/flashcore/internal/domain"
)

// OpenParams describes a position open request.
type OpenParams struct {
	Owner        string
	MarketID     string
	OutcomeIndex int
	Stake        float64
	BaseLeverage float64
	Collateral   float64
	Chain        []domain.ChainStep
}

// OpenPosition runs the full trade commit path under the market lock: solve
// the execution amount, evaluate and risk-check the leverage chain, apply
// the chain against its venues, then persist the position and the updated
// market. A chain failure leaves no partial state behind.
func (e *Engine) OpenPosition(ctx context.Context, p OpenParams) (domain.Position, error) {
	if p.Stake <= 0 {
		return domain.Position{}, fmt.Errorf("engine: open position: stake %v: %w", p.Stake, domain.ErrInvalidOrderSize)
	}
	if p.BaseLeverage < 1 {
		p.BaseLeverage = 1
	}

	var pos domain.Position
	err := e.withMarketLock(ctx, p.MarketID, func(ctx context.Context) error {
		m, err := e.loadMarket(ctx, p.MarketID)
		if err != nil {
			return fmt.Errorf("engine: open position: load market %s: %w", p.MarketID, err)
		}
		if !m.Tradeable() {
			return fmt.Errorf("engine: open position: market %s: %w", p.MarketID, domain.ErrMarketNotOpen)
		}
		if p.OutcomeIndex < 0 || p.OutcomeIndex >= len(m.Outcomes) {
			return fmt.Errorf("engine: open position: outcome %d: %w", p.OutcomeIndex, domain.ErrInvalidOutcome)
		}

		liquidity := m.TotalVolume
		if liquidity <= 0 {
			liquidity = p.Stake
		}
		solved, err := amm.Solve(p.Stake, liquidity, m.Tau)
		if err != nil {
			return fmt.Errorf("engine: open position: solve: %w", err)
		}
		if !solved.Converged {
			e.logger.WarnContext(ctx, "engine: solver did not converge, using best estimate",
				slog.String("market_id", p.MarketID),
				slog.Int("iterations", solved.Iterations),
			)
		}

		evaluated, err := e.chain.Evaluate(p.BaseLeverage, m.Tau, p.Chain)
		if err != nil {
			return err
		}

		pos = domain.Position{
			ID:                uuid.New().String(),
			Owner:             p.Owner,
			MarketID:          p.MarketID,
			OutcomeIndex:      p.OutcomeIndex,
			Stake:             p.Stake,
			BaseLeverage:      p.BaseLeverage,
			EffectiveLeverage: evaluated.EffectiveLeverage,
			EntryOdds:         m.Outcomes[p.OutcomeIndex].Odds,
			Collateral:        p.Collateral,
			Status:            domain.PositionStatusOpen,
			OpenedAt:          time.Now().UTC(),
		}
		if err := e.risk.CheckOpen(ctx, &m, &pos); err != nil {
			return err
		}

		executed, err := e.chain.Execute(ctx, p.MarketID, p.BaseLeverage, m.Tau, p.Stake, p.Chain)
		if err != nil {
			return err
		}
		pos.EffectiveLeverage = executed.EffectiveLeverage

		applyTradeVolume(&m, p.OutcomeIndex, solved.Amount)
		if err := e.positions.Create(ctx, pos); err != nil {
			// The venues were already touched; put them back before
			// reporting the failure so no leverage survives a phantom open.
			e.chain.Unwind(p.MarketID, p.Stake, p.Chain)
			return fmt.Errorf("engine: open position: persist: %w", err)
		}
		if err := e.saveMarket(ctx, m); err != nil {
			e.voidPosition(ctx, pos)
			e.chain.Unwind(p.MarketID, p.Stake, p.Chain)
			return fmt.Errorf("engine: open position: save market: %w", err)
		}

		e.auditEvent(ctx, "position.open", map[string]any{
			"position_id":        pos.ID,
			"market_id":          p.MarketID,
			"owner":              p.Owner,
			"stake":              p.Stake,
			"effective_leverage": pos.EffectiveLeverage,
			"capped":             executed.Capped,
		})
		e.logger.InfoContext(ctx, "engine: position opened",
			slog.String("position_id", pos.ID),
			slog.String("market_id", p.MarketID),
			slog.Float64("stake", p.Stake),
			slog.Float64("executed", solved.Amount),
			slog.Float64("effective_leverage", pos.EffectiveLeverage),
		)
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

// voidPosition closes a just-created position at zero payout after a later
// commit step failed. Best effort: the open already failed, so a second
// storage error only gets logged.
func (e *Engine) voidPosition(ctx context.Context, pos domain.Position) {
	now := time.Now().UTC()
	pos.Status = domain.PositionStatusClosed
	pos.Payout = 0
	pos.ClosedAt = &now
	if err := e.positions.Update(ctx, pos); err != nil {
		e.logger.ErrorContext(ctx, "engine: void position failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

// applyTradeVolume records an executed trade against one outcome and shifts
// the implied probabilities by volume weight. The update is
// self-normalizing: probability mass moves to the traded outcome in
// proportion to the executed amount.
func applyTradeVolume(m *domain.Market, outcomeIndex int, amount float64) {
	if amount <= 0 {
		return
	}
	weight := m.TotalVolume
	if weight <= 0 {
		weight = amount
	}
	total := weight + amount
	for i := range m.Outcomes {
		share := m.Outcomes[i].Probability * weight / total
		if i == outcomeIndex {
			share += amount / total
		}
		m.Outcomes[i].Probability = share
	}
	m.NormalizeProbabilities()

	m.Outcomes[outcomeIndex].Volume += amount
	m.Outcomes[outcomeIndex].Backers++
	m.TotalVolume += amount
}

// ClosePosition cashes a position out early at its mark-to-market value:
// stake times effective leverage times entry odds, weighted by the outcome's
// current implied probability. Only open positions in still-open markets can
// close early; everything else waits for settlement.
func (e *Engine) ClosePosition(ctx context.Context, positionID string) (domain.Position, error) {
	// The unlocked read only locates the market; status is decided on a
	// fresh read under the lock so racing closes serialize to exactly one.
	pos, err := e.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: close position %s: %w", positionID, err)
	}

	err = e.withMarketLock(ctx, pos.MarketID, func(ctx context.Context) error {
		pos, err = e.positions.GetByID(ctx, positionID)
		if err != nil {
			return fmt.Errorf("engine: close position %s: %w", positionID, err)
		}
		if pos.Status != domain.PositionStatusOpen {
			return fmt.Errorf("engine: close position %s: %w", positionID, domain.ErrPositionClosed)
		}

		m, err := e.loadMarket(ctx, pos.MarketID)
		if err != nil {
			return fmt.Errorf("engine: close position: load market %s: %w", pos.MarketID, err)
		}
		if m.Status != domain.MarketStatusOpen {
			return fmt.Errorf("engine: close position: market %s is %s: %w", m.ID, m.Status, domain.ErrMarketNotOpen)
		}

		now := time.Now().UTC()
		prob := m.Outcomes[pos.OutcomeIndex].Probability
		pos.Payout = pos.Stake * pos.EffectiveLeverage * pos.EntryOdds * prob
		pos.Status = domain.PositionStatusClosed
		pos.ClosedAt = &now
		if err := e.positions.Update(ctx, pos); err != nil {
			return fmt.Errorf("engine: close position: persist: %w", err)
		}

		e.auditEvent(ctx, "position.close", map[string]any{
			"position_id": pos.ID,
			"market_id":   pos.MarketID,
			"payout":      pos.Payout,
		})
		e.logger.InfoContext(ctx, "engine: position closed early",
			slog.String("position_id", pos.ID),
			slog.Float64("payout", pos.Payout),
		)
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}
