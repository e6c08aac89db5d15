package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flashverse/flashcore/internal/domain"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second

	// Per-source attestation budget. Anything past this is dropped before
	// signature verification, which is the expensive part.
	attestationLimit  = 30
	attestationWindow = time.Minute
)

// MarketSink applies feed updates to live markets.
type MarketSink interface {
	ApplyEvent(ctx context.Context, marketID string, ev domain.MarketEvent) error
}

// AttestationSink collects signed outcome claims toward quorum.
type AttestationSink interface {
	Submit(att domain.Attestation) error
}

// SourceLimiter bounds attestation submissions per source across instances.
type SourceLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Consumer owns the feed connection lifecycle and routes frames into the
// engine and the attestation collector.
type Consumer struct {
	client   *Client
	markets  MarketSink
	atts     AttestationSink
	limiter  SourceLimiter
	attLimit int
	logger   *slog.Logger
}

// NewConsumer creates a consumer for the given websocket endpoint. limiter
// may be nil, in which case attestations are not throttled.
func NewConsumer(url string, markets MarketSink, atts AttestationSink, limiter SourceLimiter, logger *slog.Logger) *Consumer {
	c := &Consumer{
		markets:  markets,
		atts:     atts,
		limiter:  limiter,
		attLimit: attestationLimit,
		logger:   logger.With(slog.String("component", "feed_consumer")),
	}
	c.client = NewClient(url, c.handleMarket, c.handleAttestation, logger)
	return c
}

// SetAttestationBudget overrides the per-source attestations-per-minute
// budget. Must be called before Run.
func (c *Consumer) SetAttestationBudget(perMinute int) {
	if perMinute > 0 {
		c.attLimit = perMinute
	}
}

// Subscribe registers markets of interest before or during Run.
func (c *Consumer) Subscribe(ctx context.Context, marketIDs ...string) error {
	return c.client.Subscribe(ctx, marketIDs...)
}

// Run connects and consumes frames until ctx is cancelled, reconnecting
// with exponential backoff on disconnect.
func (c *Consumer) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "feed disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", delay),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Consumer) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	err := c.client.Dial(dialCtx)
	cancel()
	if err != nil {
		return err
	}
	defer c.client.Close()
	return c.client.Listen(ctx)
}

func (c *Consumer) handleMarket(ctx context.Context, marketID string, ev domain.MarketEvent) {
	err := c.markets.ApplyEvent(ctx, marketID, ev)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMarketNotOpen):
		// Updates for unknown or already-settled markets are routine noise.
	default:
		c.logger.WarnContext(ctx, "apply market event failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) handleAttestation(ctx context.Context, att domain.Attestation) {
	if c.limiter != nil {
		ok, err := c.limiter.Allow(ctx, "attestation:"+att.SourceID, c.attLimit, attestationWindow)
		if err != nil {
			// Fail open: a limiter outage must not stall resolution.
			c.logger.WarnContext(ctx, "attestation limiter unavailable",
				slog.String("source_id", att.SourceID),
				slog.String("error", err.Error()),
			)
		} else if !ok {
			c.logger.WarnContext(ctx, "attestation source over limit",
				slog.String("source_id", att.SourceID),
			)
			return
		}
	}
	if err := c.atts.Submit(att); err != nil {
		c.logger.WarnContext(ctx, "attestation rejected",
			slog.String("market_id", att.MarketID),
			slog.String("source_id", att.SourceID),
			slog.String("error", err.Error()),
		)
	}
}
