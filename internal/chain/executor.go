// Package chain executes leverage chains: ordered sequences of amplification
// steps against external venues, with all-or-nothing semantics.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashverse/flashcore/internal/domain"
)

// TauBonusCoefficient scales the time-pressure bonus applied once after all
// chain steps: effective = base * product(steps) * (1 + tau*coefficient).
const TauBonusCoefficient = 1500.0

// DefaultStepTimeout bounds a single amplifier call.
const DefaultStepTimeout = 2 * time.Second

// Executor applies leverage chains through registered amplifier venues. A
// chain either applies completely or is unwound completely; a partially
// applied chain never escapes.
type Executor struct {
	amplifiers  map[domain.ChainAction]domain.Amplifier
	stepTimeout time.Duration
	tauBonus    float64
	logger      *slog.Logger
}

// NewExecutor creates an Executor over the given venue bindings. Actions with
// no registered amplifier still contribute their multiplier; only bound
// actions perform external calls.
func NewExecutor(amplifiers map[domain.ChainAction]domain.Amplifier, logger *slog.Logger) *Executor {
	return &Executor{
		amplifiers:  amplifiers,
		stepTimeout: DefaultStepTimeout,
		tauBonus:    TauBonusCoefficient,
		logger:      logger.With(slog.String("component", "chain")),
	}
}

// SetStepTimeout overrides the per-step amplifier deadline. Must be called
// before Execute.
func (e *Executor) SetStepTimeout(d time.Duration) {
	if d > 0 {
		e.stepTimeout = d
	}
}

// SetTauBonus overrides the time-pressure bonus coefficient.
func (e *Executor) SetTauBonus(coefficient float64) {
	e.tauBonus = coefficient
}

// Evaluate computes the effective leverage for a chain without touching any
// venue. Pure and idempotent: same steps, same base, same result. The tau
// bonus multiplies in exactly once, after all steps, and the result clamps at
// the global cap.
func (e *Executor) Evaluate(base, tau float64, steps []domain.ChainStep) (domain.ChainResult, error) {
	if len(steps) > domain.MaxChainSteps {
		return domain.ChainResult{}, fmt.Errorf("chain: %d steps: %w", len(steps), domain.ErrChainTooLong)
	}

	leverage := base
	for _, step := range steps {
		leverage *= step.Multiplier()
	}
	leverage *= 1 + tau*e.tauBonus

	capped := false
	if leverage > domain.GlobalMaxLeverage {
		leverage = domain.GlobalMaxLeverage
		capped = true
	}
	return domain.ChainResult{
		EffectiveLeverage: leverage,
		StepsApplied:      len(steps),
		Capped:            capped,
	}, nil
}

// Execute applies the chain against its venues and returns the effective
// leverage for the position. Steps run in order; the first failure or
// deadline unwinds every applied step in reverse order before the error is
// returned. The unwind runs on a fresh timeout so a cancelled trade context
// cannot strand venue state.
func (e *Executor) Execute(ctx context.Context, marketID string, base, tau, stake float64, steps []domain.ChainStep) (domain.ChainResult, error) {
	result, err := e.Evaluate(base, tau, steps)
	if err != nil {
		return domain.ChainResult{}, err
	}

	applied := make([]domain.ChainStep, 0, len(steps))
	for i, step := range steps {
		if err := e.applyStep(ctx, marketID, step, stake); err != nil {
			e.logger.Warn("chain: step failed, unwinding",
				slog.String("market_id", marketID),
				slog.Int("step", i),
				slog.String("action", string(step.Action)),
				slog.String("error", err.Error()),
			)
			e.unwind(marketID, stake, applied)
			return domain.ChainResult{}, fmt.Errorf("chain: step %d (%s): %w: %w", i, step.Action, domain.ErrChainStepFailed, err)
		}
		applied = append(applied, step)
	}

	e.logger.Info("chain: applied",
		slog.String("market_id", marketID),
		slog.Int("steps", result.StepsApplied),
		slog.Float64("effective_leverage", result.EffectiveLeverage),
		slog.Bool("capped", result.Capped),
	)
	return result, nil
}

func (e *Executor) applyStep(ctx context.Context, marketID string, step domain.ChainStep, stake float64) error {
	amp, ok := e.amplifiers[step.Action]
	if !ok {
		return nil
	}
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()
	return amp.Apply(stepCtx, marketID, stake)
}

// Unwind reverts a fully applied chain, newest step first. Callers use it
// when a commit step after Execute fails and the venue state must be put
// back; a chain that Execute itself rejected has already been unwound.
func (e *Executor) Unwind(marketID string, stake float64, steps []domain.ChainStep) {
	e.unwind(marketID, stake, steps)
}

// unwind reverts applied steps newest-first. Revert failures are logged and
// skipped so the remaining steps still unwind.
func (e *Executor) unwind(marketID string, stake float64, applied []domain.ChainStep) {
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		amp, ok := e.amplifiers[step.Action]
		if !ok {
			continue
		}
		revertCtx, cancel := context.WithTimeout(context.Background(), e.stepTimeout)
		if err := amp.Revert(revertCtx, marketID, stake); err != nil {
			e.logger.Error("chain: revert failed",
				slog.String("market_id", marketID),
				slog.Int("step", i),
				slog.String("action", string(step.Action)),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
