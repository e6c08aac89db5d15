// Package ledger emits finalized settlements to the durable ledger stream.
// The core only appends; downstream accounting consumes the stream at its
// own pace.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashverse/flashcore/internal/crypto"
	"github.com/flashverse/flashcore/internal/domain"
)

// StreamName is the settlement stream consumed by downstream ledgers.
const StreamName = "settlements"

// Record is the wire format of one settlement stream entry. The Tag
// authenticates the Body so consumers can reject tampered messages.
type Record struct {
	Body json.RawMessage `json:"body"`
	Tag  string          `json:"tag,omitempty"`
}

// body is the authenticated settlement payload.
type body struct {
	MarketID   string          `json:"market_id"`
	Outcome    int             `json:"outcome"`
	Path       string          `json:"path"`
	ProofHash  []byte          `json:"proof_hash,omitempty"`
	Payouts    []domain.Payout `json:"payouts,omitempty"`
	ResolvedAt time.Time       `json:"resolved_at"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// StreamLedger implements domain.Ledger over the signal bus stream.
type StreamLedger struct {
	bus    domain.SignalBus
	auth   *crypto.StreamAuth
	logger *slog.Logger
}

// New creates a StreamLedger. auth may be nil, in which case records are
// emitted without tags.
func New(bus domain.SignalBus, auth *crypto.StreamAuth, logger *slog.Logger) *StreamLedger {
	return &StreamLedger{
		bus:    bus,
		auth:   auth,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// EmitSettlement appends one settlement to the stream.
func (l *StreamLedger) EmitSettlement(ctx context.Context, s domain.Settlement) error {
	raw, err := json.Marshal(body{
		MarketID:   s.MarketID,
		Outcome:    s.Outcome,
		Path:       string(s.Path),
		ProofHash:  s.ProofHash,
		Payouts:    s.Payouts,
		ResolvedAt: s.ResolvedAt,
		EmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("ledger: marshal settlement %s: %w", s.MarketID, err)
	}

	rec := Record{Body: raw}
	if l.auth != nil {
		rec.Tag = l.auth.Sign(raw)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal record %s: %w", s.MarketID, err)
	}

	if err := l.bus.StreamAppend(ctx, StreamName, payload); err != nil {
		return fmt.Errorf("ledger: emit settlement %s: %w", s.MarketID, err)
	}
	l.logger.InfoContext(ctx, "ledger: settlement emitted",
		slog.String("market_id", s.MarketID),
		slog.Int("payouts", len(s.Payouts)),
	)
	return nil
}

// Decode parses and, when auth is given, authenticates one stream record.
func Decode(payload []byte, auth *crypto.StreamAuth) (domain.Settlement, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.Settlement{}, fmt.Errorf("ledger: parse record: %w", err)
	}
	if auth != nil {
		if err := auth.Verify(rec.Body, rec.Tag); err != nil {
			return domain.Settlement{}, fmt.Errorf("ledger: %w", err)
		}
	}
	var b body
	if err := json.Unmarshal(rec.Body, &b); err != nil {
		return domain.Settlement{}, fmt.Errorf("ledger: parse body: %w", err)
	}
	return domain.Settlement{
		MarketID:   b.MarketID,
		Outcome:    b.Outcome,
		Path:       domain.ResolutionPath(b.Path),
		ProofHash:  b.ProofHash,
		Payouts:    b.Payouts,
		ResolvedAt: b.ResolvedAt,
	}, nil
}

var _ domain.Ledger = (*StreamLedger)(nil)
