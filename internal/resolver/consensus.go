package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flashverse/flashcore/internal/domain"
)

// Collector accumulates signed attestations per market and lets a resolving
// goroutine block until a quorum of distinct sources agrees on an outcome.
// Attestation feeds call Submit; the resolver calls Await.
type Collector struct {
	mu      sync.Mutex
	pending map[string]map[string]domain.Attestation // market id -> source id -> latest attestation
	notify  map[string]chan struct{}

	verifier domain.AttestationVerifier
	logger   *slog.Logger
}

// NewCollector creates a Collector. Every submitted attestation is signature
// checked through the verifier before it can count toward a quorum.
func NewCollector(verifier domain.AttestationVerifier, logger *slog.Logger) *Collector {
	return &Collector{
		pending:  make(map[string]map[string]domain.Attestation),
		notify:   make(map[string]chan struct{}),
		verifier: verifier,
		logger:   logger.With(slog.String("component", "consensus")),
	}
}

// Submit records one attestation. A later attestation from the same source
// for the same market replaces the earlier one, so a source never counts
// twice.
func (c *Collector) Submit(att domain.Attestation) error {
	if err := c.verifier.VerifyAttestation(att); err != nil {
		c.logger.Warn("consensus: attestation rejected",
			slog.String("market_id", att.MarketID),
			slog.String("source_id", att.SourceID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("consensus: submit from %s: %w", att.SourceID, err)
	}

	c.mu.Lock()
	bySource, ok := c.pending[att.MarketID]
	if !ok {
		bySource = make(map[string]domain.Attestation)
		c.pending[att.MarketID] = bySource
	}
	bySource[att.SourceID] = att
	if ch, ok := c.notify[att.MarketID]; ok {
		close(ch)
		c.notify[att.MarketID] = make(chan struct{})
	}
	c.mu.Unlock()
	return nil
}

// Await blocks until some outcome collects quorum distinct agreeing sources,
// or the context expires, in which case it reports ErrQuorumNotReached.
func (c *Collector) Await(ctx context.Context, marketID string, quorum int) (int, error) {
	for {
		c.mu.Lock()
		if outcome, ok := c.tally(marketID, quorum); ok {
			c.mu.Unlock()
			return outcome, nil
		}
		ch, ok := c.notify[marketID]
		if !ok {
			ch = make(chan struct{})
			c.notify[marketID] = ch
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("consensus: market %s: %w", marketID, domain.ErrQuorumNotReached)
		case <-ch:
		}
	}
}

// tally requires c.mu held.
func (c *Collector) tally(marketID string, quorum int) (int, bool) {
	counts := make(map[int]int)
	for _, att := range c.pending[marketID] {
		counts[att.Outcome]++
		if counts[att.Outcome] >= quorum {
			return att.Outcome, true
		}
	}
	return 0, false
}

// Drop discards collected attestations for a market once its resolution is
// final.
func (c *Collector) Drop(marketID string) {
	c.mu.Lock()
	delete(c.pending, marketID)
	delete(c.notify, marketID)
	c.mu.Unlock()
}
