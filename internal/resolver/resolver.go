// Package resolver finalizes market outcomes through the dual resolution
// path: succinct proof verification first, attestation consensus as
// fallback, dispute when both fail.
package resolver

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashverse/flashcore/internal/domain"
)

const (
	// DefaultProofBudget bounds proof verification. A proof that cannot be
	// checked inside the budget is treated as absent, not invalid.
	DefaultProofBudget = 3 * time.Second

	// DefaultConsensusWindow bounds the wait for an attestation quorum.
	DefaultConsensusWindow = 10 * time.Second

	// MaxProofAge rejects stale proofs: the declared timestamp must be
	// within this window of the resolution attempt.
	MaxProofAge = 2 * time.Minute

	// maxClockSkew tolerates proofs timestamped slightly ahead of us.
	maxClockSkew = 5 * time.Second
)

// Resolution is the finalized outcome decision for one market.
type Resolution struct {
	Outcome   int
	Path      domain.ResolutionPath
	ProofHash []byte
}

// Resolver decides market outcomes. It is stateless across markets; the
// engine serializes calls per market and applies the decision.
type Resolver struct {
	verifier   domain.ProofVerifier
	collector  *Collector
	governance domain.GovernanceNotifier

	quorum          int
	proofBudget     time.Duration
	consensusWindow time.Duration
	logger          *slog.Logger
}

// NewResolver wires the proof verifier, attestation collector, and
// governance notifier. The governance notifier may be nil when disputes are
// handled out of band.
func NewResolver(verifier domain.ProofVerifier, collector *Collector, governance domain.GovernanceNotifier, logger *slog.Logger) *Resolver {
	return &Resolver{
		verifier:        verifier,
		collector:       collector,
		governance:      governance,
		quorum:          domain.QuorumSize,
		proofBudget:     DefaultProofBudget,
		consensusWindow: DefaultConsensusWindow,
		logger:          logger.With(slog.String("component", "resolver")),
	}
}

// SetWindows overrides the proof budget and consensus window. Must be called
// before Resolve.
func (r *Resolver) SetWindows(proofBudget, consensusWindow time.Duration) {
	if proofBudget > 0 {
		r.proofBudget = proofBudget
	}
	if consensusWindow > 0 {
		r.consensusWindow = consensusWindow
	}
}

// Resolve decides the outcome for a market. The proof path is attempted
// first when a proof is supplied; on any proof failure it falls through to
// attestation consensus. When neither path produces an outcome the market is
// reported to governance and ErrQuorumNotReached is returned; the caller
// transitions the market to disputed.
//
// Resolution is decide-once: a market already resolved is never re-decided.
func (r *Resolver) Resolve(ctx context.Context, m *domain.Market, proof *domain.ResolutionProof) (Resolution, error) {
	if m.Status == domain.MarketStatusResolved {
		return Resolution{}, fmt.Errorf("resolver: market %s: %w", m.ID, domain.ErrMarketResolved)
	}

	if proof != nil {
		if res, ok := r.tryProof(ctx, m, *proof); ok {
			return res, nil
		}
	}

	if outcome, ok := r.tryConsensus(ctx, m); ok {
		return Resolution{Outcome: outcome, Path: domain.ResolutionPathConsensus}, nil
	}

	r.logger.Warn("resolver: both paths failed, disputing",
		slog.String("market_id", m.ID),
	)
	if r.governance != nil {
		if err := r.governance.NotifyDisputed(ctx, m.ID, "proof and consensus both failed"); err != nil {
			r.logger.Error("resolver: governance notify failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return Resolution{}, fmt.Errorf("resolver: market %s: %w", m.ID, domain.ErrQuorumNotReached)
}

func (r *Resolver) tryProof(ctx context.Context, m *domain.Market, proof domain.ResolutionProof) (Resolution, bool) {
	if r.verifier == nil {
		return Resolution{}, false
	}
	if err := r.validateProofInputs(m, proof); err != nil {
		r.logger.Warn("resolver: proof rejected",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return Resolution{}, false
	}

	verifyCtx, cancel := context.WithTimeout(ctx, r.proofBudget)
	defer cancel()
	outcome, valid, err := r.verifier.Verify(verifyCtx, proof)
	if err != nil {
		r.logger.Warn("resolver: proof verification failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return Resolution{}, false
	}
	if !valid || outcome < 0 || outcome >= len(m.Outcomes) {
		r.logger.Warn("resolver: proof invalid",
			slog.String("market_id", m.ID),
			slog.Int("outcome", outcome),
			slog.Bool("valid", valid),
		)
		return Resolution{}, false
	}

	hash := sha256.Sum256(proof.Proof)
	r.logger.Info("resolver: resolved by proof",
		slog.String("market_id", m.ID),
		slog.Int("outcome", outcome),
	)
	return Resolution{Outcome: outcome, Path: domain.ResolutionPathProof, ProofHash: hash[:]}, true
}

func (r *Resolver) validateProofInputs(m *domain.Market, proof domain.ResolutionProof) error {
	if proof.MarketID != m.ID {
		return fmt.Errorf("declared market %s does not match %s: %w", proof.MarketID, m.ID, domain.ErrProofInvalid)
	}
	if len(proof.Proof) == 0 {
		return fmt.Errorf("empty proof body: %w", domain.ErrProofInvalid)
	}
	if !m.CreatedAt.IsZero() && proof.Timestamp.Before(m.CreatedAt) {
		return fmt.Errorf("proof timestamp %s predates market creation %s: %w",
			proof.Timestamp, m.CreatedAt, domain.ErrProofInvalid)
	}
	now := time.Now().UTC()
	if proof.Timestamp.Before(now.Add(-MaxProofAge)) {
		return fmt.Errorf("proof timestamp %s too old: %w", proof.Timestamp, domain.ErrProofInvalid)
	}
	if proof.Timestamp.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("proof timestamp %s in the future: %w", proof.Timestamp, domain.ErrProofInvalid)
	}
	return nil
}

func (r *Resolver) tryConsensus(ctx context.Context, m *domain.Market) (int, bool) {
	if r.collector == nil {
		return 0, false
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.consensusWindow)
	defer cancel()
	outcome, err := r.collector.Await(waitCtx, m.ID, r.quorum)
	if err != nil {
		return 0, false
	}
	if outcome < 0 || outcome >= len(m.Outcomes) {
		r.logger.Warn("resolver: consensus outcome out of range",
			slog.String("market_id", m.ID),
			slog.Int("outcome", outcome),
		)
		return 0, false
	}
	defer r.collector.Drop(m.ID)
	r.logger.Info("resolver: resolved by consensus",
		slog.String("market_id", m.ID),
		slog.Int("outcome", outcome),
	)
	return outcome, true
}
