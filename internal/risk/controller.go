// Package risk implements the pre-trade risk gate. The controller is a
// read-only check over an immutable config snapshot: it never mutates
// markets or positions, it only approves or rejects.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flashverse/flashcore/internal/domain"
)

// Config holds the tunable parameters for pre-trade risk checks.
type Config struct {
	// MinCollateralRatio is the collateral-to-exposure floor below which a
	// position may not be opened.
	MinCollateralRatio float64
	// MaxLeverage is the hard leverage cap applied after all per-market
	// ceilings.
	MaxLeverage float64
	// MaxStake bounds the stake of a single position. Zero disables the
	// check.
	MaxStake float64
}

// Defaults returns the production risk parameters.
func Defaults() Config {
	return Config{
		MinCollateralRatio: 0.80,
		MaxLeverage:        domain.GlobalMaxLeverage,
		MaxStake:           0,
	}
}

// Controller gates every position open against the current risk config.
// Checks read a config snapshot taken at call entry, so a concurrent
// Reconfigure never produces a check that mixes old and new parameters.
type Controller struct {
	mu     sync.RWMutex
	cfg    Config
	paused bool

	audit  domain.AuditStore
	logger *slog.Logger
}

// NewController creates a Controller with the given parameters. The audit
// store records pause state transitions and may be nil in tests.
func NewController(cfg Config, audit domain.AuditStore, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		audit:  audit,
		logger: logger.With(slog.String("component", "risk")),
	}
}

func (c *Controller) snapshot() (Config, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, c.paused
}

// CheckOpen validates a prospective position against the market it targets.
// It returns the first failed check, or nil if the open is allowed.
//
// Checks performed:
//  1. Trading not paused
//  2. Market is open and not expired
//  3. Outcome index within range
//  4. Leverage within the market ceiling and the global cap
//  5. Collateral ratio at or above the configured floor
//  6. Stake within the per-position bound
func (c *Controller) CheckOpen(ctx context.Context, m *domain.Market, p *domain.Position) error {
	cfg, paused := c.snapshot()

	if paused {
		return fmt.Errorf("risk: check open: %w", domain.ErrEmergencyPaused)
	}
	if !m.Tradeable() {
		if m.Status == domain.MarketStatusOpen {
			return fmt.Errorf("risk: market %s expired: %w", m.ID, domain.ErrMarketExpired)
		}
		return fmt.Errorf("risk: market %s is %s: %w", m.ID, m.Status, domain.ErrMarketNotOpen)
	}
	if p.OutcomeIndex < 0 || p.OutcomeIndex >= len(m.Outcomes) {
		return fmt.Errorf("risk: outcome %d of %d: %w", p.OutcomeIndex, len(m.Outcomes), domain.ErrInvalidOutcome)
	}

	ceiling := m.LeverageCeiling
	if ceiling <= 0 {
		ceiling = domain.LeverageCeilingFor(m.TimeLeft)
	}
	if ceiling > cfg.MaxLeverage {
		ceiling = cfg.MaxLeverage
	}
	if p.EffectiveLeverage > ceiling {
		c.logger.WarnContext(ctx, "risk: leverage exceeds ceiling",
			slog.String("market_id", m.ID),
			slog.String("owner", p.Owner),
			slog.Float64("leverage", p.EffectiveLeverage),
			slog.Float64("ceiling", ceiling),
		)
		return fmt.Errorf("risk: leverage %.1f over ceiling %.1f: %w", p.EffectiveLeverage, ceiling, domain.ErrLeverageExceedsCeiling)
	}

	if ratio := p.CollateralRatio(); ratio < cfg.MinCollateralRatio {
		c.logger.WarnContext(ctx, "risk: position undercollateralized",
			slog.String("market_id", m.ID),
			slog.String("owner", p.Owner),
			slog.Float64("ratio", ratio),
			slog.Float64("floor", cfg.MinCollateralRatio),
		)
		return fmt.Errorf("risk: collateral ratio %.3f below floor %.2f: %w", ratio, cfg.MinCollateralRatio, domain.ErrUndercollateralized)
	}

	if cfg.MaxStake > 0 && p.Stake > cfg.MaxStake {
		return fmt.Errorf("risk: stake %.2f exceeds max %.2f: %w", p.Stake, cfg.MaxStake, domain.ErrStakeTooLarge)
	}

	return nil
}

// Paused reports whether trading is currently halted.
func (c *Controller) Paused() bool {
	_, paused := c.snapshot()
	return paused
}

// Pause halts all position opens until Unpause. The transition is recorded
// in the audit log with the acting operator.
func (c *Controller) Pause(ctx context.Context, operator, reason string) error {
	c.mu.Lock()
	already := c.paused
	c.paused = true
	c.mu.Unlock()

	if already {
		return nil
	}
	c.logger.WarnContext(ctx, "risk: trading paused",
		slog.String("operator", operator),
		slog.String("reason", reason),
	)
	return c.auditEvent(ctx, operator, "risk.pause", reason)
}

// Unpause resumes position opens.
func (c *Controller) Unpause(ctx context.Context, operator string) error {
	c.mu.Lock()
	already := !c.paused
	c.paused = false
	c.mu.Unlock()

	if already {
		return nil
	}
	c.logger.InfoContext(ctx, "risk: trading resumed", slog.String("operator", operator))
	return c.auditEvent(ctx, operator, "risk.unpause", "")
}

// Reconfigure atomically replaces the risk parameters. In-flight checks keep
// the snapshot they started with.
func (c *Controller) Reconfigure(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.logger.Info("risk: parameters updated",
		slog.Float64("min_collateral_ratio", cfg.MinCollateralRatio),
		slog.Float64("max_leverage", cfg.MaxLeverage),
	)
}

func (c *Controller) auditEvent(ctx context.Context, operator, event, reason string) error {
	if c.audit == nil {
		return nil
	}
	detail := map[string]any{"operator": operator}
	if reason != "" {
		detail["reason"] = reason
	}
	if err := c.audit.Log(ctx, event, detail); err != nil {
		return fmt.Errorf("risk: audit %s: %w", event, err)
	}
	return nil
}
