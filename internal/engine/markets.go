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

// CreateParams describes a market to open.
type CreateParams struct {
	ID       string // generated when empty
	ParentID string
	Title    string
	Category string
	Duration int64    // seconds until expiry
	Outcomes []string // mutually exclusive outcome names
	Priors   []float64
}

// CreateMarket validates and opens a new flash market. The outcome set and
// duration are fixed here; priors default to uniform when absent.
func (e *Engine) CreateMarket(ctx context.Context, p CreateParams) (domain.Market, error) {
	if len(p.Outcomes) < domain.MinOutcomes || len(p.Outcomes) > domain.MaxOutcomes {
		return domain.Market{}, fmt.Errorf("engine: create market: %d outcomes: %w", len(p.Outcomes), domain.ErrInvalidOutcome)
	}
	if p.Duration <= 0 || p.Duration > domain.MaxMarketDuration {
		return domain.Market{}, fmt.Errorf("engine: create market: duration %ds outside (0, %d]: %w",
			p.Duration, domain.MaxMarketDuration, domain.ErrMarketExpired)
	}
	if len(p.Priors) > 0 && len(p.Priors) != len(p.Outcomes) {
		return domain.Market{}, fmt.Errorf("engine: create market: %d priors for %d outcomes: %w",
			len(p.Priors), len(p.Outcomes), domain.ErrInvalidOutcome)
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	m := domain.Market{
		ID:              id,
		ParentID:        p.ParentID,
		Title:           p.Title,
		Category:        p.Category,
		Tau:             amm.Tau(p.Duration),
		TimeLeft:        p.Duration,
		Outcomes:        make([]domain.Outcome, len(p.Outcomes)),
		LeverageCeiling: domain.LeverageCeilingFor(p.Duration),
		Status:          domain.MarketStatusOpen,
		WinningOutcome:  -1,
		CreatedAt:       time.Now().UTC(),
	}
	for i, name := range p.Outcomes {
		m.Outcomes[i].Name = name
		if len(p.Priors) > 0 {
			m.Outcomes[i].Probability = p.Priors[i]
		}
	}
	m.NormalizeProbabilities()

	if err := e.saveMarket(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("engine: create market %s: %w", id, err)
	}
	e.logger.InfoContext(ctx, "engine: market created",
		slog.String("market_id", id),
		slog.Int64("duration", p.Duration),
		slog.Int("outcomes", len(p.Outcomes)),
		slog.Float64("leverage_ceiling", m.LeverageCeiling),
	)
	return m, nil
}

// GetMarket returns one market, cache-first.
func (e *Engine) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := e.loadMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: get market %s: %w", id, err)
	}
	return m, nil
}

// QuoteResult is a read-only price estimate. Quoting never mutates market
// state.
type QuoteResult struct {
	ExecutionAmount float64
	Probability     float64
	EntryOdds       float64
	Converged       bool
}

// Quote prices an order against a market outcome without committing
// anything.
func (e *Engine) Quote(ctx context.Context, marketID string, outcomeIndex int, orderSize float64) (QuoteResult, error) {
	m, err := e.loadMarket(ctx, marketID)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("engine: quote %s: %w", marketID, err)
	}
	if !m.Tradeable() {
		return QuoteResult{}, fmt.Errorf("engine: quote %s: %w", marketID, domain.ErrMarketNotOpen)
	}
	if outcomeIndex < 0 || outcomeIndex >= len(m.Outcomes) {
		return QuoteResult{}, fmt.Errorf("engine: quote %s outcome %d: %w", marketID, outcomeIndex, domain.ErrInvalidOutcome)
	}

	liquidity := m.TotalVolume
	if liquidity <= 0 {
		liquidity = orderSize // a fresh book prices against the order itself
	}
	solved, err := amm.Solve(orderSize, liquidity, m.Tau)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("engine: quote %s: %w", marketID, err)
	}

	out := m.Outcomes[outcomeIndex]
	return QuoteResult{
		ExecutionAmount: solved.Amount,
		Probability:     out.Probability,
		EntryOdds:       out.Odds,
		Converged:       solved.Converged,
	}, nil
}

// ApplyEvent folds one market data feed update into a market: remaining
// time, implied probabilities, and the early-termination signal. The
// leverage ceiling follows the remaining-time bucket downward in tradeable
// state.
func (e *Engine) ApplyEvent(ctx context.Context, marketID string, ev domain.MarketEvent) error {
	return e.withMarketLock(ctx, marketID, func(ctx context.Context) error {
		m, err := e.loadMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("engine: apply event %s: %w", marketID, err)
		}
		if m.Status != domain.MarketStatusOpen {
			// Feed updates after expiry are stale by definition.
			return nil
		}

		if ev.TimeRemaining >= 0 && ev.TimeRemaining < m.TimeLeft {
			m.TimeLeft = ev.TimeRemaining
			m.Tau = amm.Tau(m.TimeLeft)
			m.LeverageCeiling = domain.LeverageCeilingFor(m.TimeLeft)
		}
		if len(ev.ImpliedProbabilities) == len(m.Outcomes) {
			for i, prob := range ev.ImpliedProbabilities {
				if prob >= 0 {
					m.Outcomes[i].Probability = prob
				}
			}
			m.NormalizeProbabilities()
		}
		if ev.Concluded || m.TimeLeft <= 0 {
			m.TimeLeft = 0
			m.Tau = 0
			m.Status = domain.MarketStatusResolving
			e.logger.InfoContext(ctx, "engine: market entered resolution",
				slog.String("market_id", marketID),
				slog.Bool("early", ev.Concluded),
			)
		}
		return e.saveMarket(ctx, m)
	})
}

// ExpireDue sweeps open markets and moves any whose time has run out into
// the resolving state. elapsed is the wall time since the previous sweep.
func (e *Engine) ExpireDue(ctx context.Context, elapsed time.Duration) (int, error) {
	open, err := e.markets.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("engine: expire sweep: %w", err)
	}

	dec := int64(elapsed / time.Second)
	expired := 0
	for i := range open {
		id := open[i].ID
		err := e.withMarketLock(ctx, id, func(ctx context.Context) error {
			m, err := e.loadMarket(ctx, id)
			if err != nil {
				return err
			}
			if m.Status != domain.MarketStatusOpen {
				return nil
			}
			m.TimeLeft -= dec
			if m.TimeLeft <= 0 {
				m.TimeLeft = 0
				m.Status = domain.MarketStatusResolving
				expired++
			}
			m.Tau = amm.Tau(m.TimeLeft)
			m.LeverageCeiling = domain.LeverageCeilingFor(m.TimeLeft)
			return e.saveMarket(ctx, m)
		})
		if err != nil {
			e.logger.WarnContext(ctx, "engine: expire failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return expired, nil
}

// RollupVolume returns the summed volume of a parent market's children. The
// rollup is a read-side aggregate: child trading never writes to the parent.
func (e *Engine) RollupVolume(ctx context.Context, parentID string) (float64, error) {
	children, err := e.markets.ListByParent(ctx, parentID)
	if err != nil {
		return 0, fmt.Errorf("engine: rollup %s: %w", parentID, err)
	}
	var total float64
	for i := range children {
		total += children[i].TotalVolume
	}
	return total, nil
}
