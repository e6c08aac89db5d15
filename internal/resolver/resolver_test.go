package resolver

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashverse/flashcore/internal/domain"
)

type stubProofVerifier struct {
	outcome int
	valid   bool
	err     error
}

func (s stubProofVerifier) Verify(context.Context, domain.ResolutionProof) (int, bool, error) {
	return s.outcome, s.valid, s.err
}

type recordingGovernance struct {
	mu       sync.Mutex
	disputed []string
}

func (g *recordingGovernance) NotifyDisputed(_ context.Context, marketID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disputed = append(g.disputed, marketID)
	return nil
}

func resolvingMarket() *domain.Market {
	return &domain.Market{
		ID:       "mkt-1",
		TimeLeft: 0,
		Outcomes: []domain.Outcome{
			{Name: "yes"}, {Name: "no"}, {Name: "void"},
		},
		Status:         domain.MarketStatusResolving,
		WinningOutcome: -1,
	}
}

func validProof() *domain.ResolutionProof {
	return &domain.ResolutionProof{
		Proof:     []byte("proof-bytes"),
		MarketID:  "mkt-1",
		Timestamp: time.Now().UTC(),
	}
}

func newTestResolver(verifier domain.ProofVerifier, collector *Collector, gov domain.GovernanceNotifier) *Resolver {
	r := NewResolver(verifier, collector, gov, testLogger())
	r.SetWindows(100*time.Millisecond, 100*time.Millisecond)
	return r
}

func TestResolveByProof(t *testing.T) {
	r := newTestResolver(stubProofVerifier{outcome: 1, valid: true}, nil, nil)

	proof := validProof()
	res, err := r.Resolve(context.Background(), resolvingMarket(), proof)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Outcome)
	assert.Equal(t, domain.ResolutionPathProof, res.Path)

	want := sha256.Sum256(proof.Proof)
	assert.Equal(t, want[:], res.ProofHash)
}

func TestResolveProofFallsBackToConsensus(t *testing.T) {
	tests := []struct {
		name     string
		verifier stubProofVerifier
		mutate   func(*domain.ResolutionProof)
	}{
		{
			name:     "verifier says invalid",
			verifier: stubProofVerifier{valid: false},
		},
		{
			name:     "verifier errors",
			verifier: stubProofVerifier{err: context.DeadlineExceeded},
		},
		{
			name:     "outcome out of range",
			verifier: stubProofVerifier{outcome: 7, valid: true},
		},
		{
			name:     "wrong market id",
			verifier: stubProofVerifier{outcome: 0, valid: true},
			mutate:   func(p *domain.ResolutionProof) { p.MarketID = "mkt-other" },
		},
		{
			name:     "stale timestamp",
			verifier: stubProofVerifier{outcome: 0, valid: true},
			mutate:   func(p *domain.ResolutionProof) { p.Timestamp = time.Now().UTC().Add(-time.Hour) },
		},
		{
			name:     "future timestamp",
			verifier: stubProofVerifier{outcome: 0, valid: true},
			mutate:   func(p *domain.ResolutionProof) { p.Timestamp = time.Now().UTC().Add(time.Minute) },
		},
		{
			name:     "empty proof body",
			verifier: stubProofVerifier{outcome: 0, valid: true},
			mutate:   func(p *domain.ResolutionProof) { p.Proof = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewCollector(acceptAllVerifier{}, testLogger())
			require.NoError(t, collector.Submit(att("mkt-1", "src-a", 2)))
			require.NoError(t, collector.Submit(att("mkt-1", "src-b", 2)))
			require.NoError(t, collector.Submit(att("mkt-1", "src-c", 2)))

			r := newTestResolver(tt.verifier, collector, nil)
			proof := validProof()
			if tt.mutate != nil {
				tt.mutate(proof)
			}

			res, err := r.Resolve(context.Background(), resolvingMarket(), proof)
			require.NoError(t, err)
			assert.Equal(t, 2, res.Outcome)
			assert.Equal(t, domain.ResolutionPathConsensus, res.Path)
			assert.Nil(t, res.ProofHash)
		})
	}
}

func TestResolveRejectsProofPredatingMarket(t *testing.T) {
	r := newTestResolver(stubProofVerifier{outcome: 1, valid: true}, nil, nil)

	m := resolvingMarket()
	m.CreatedAt = time.Now().UTC().Add(-30 * time.Second)

	// Timestamped before the market existed but still inside the staleness
	// window: only the market-window check can reject it.
	proof := validProof()
	proof.Timestamp = m.CreatedAt.Add(-70 * time.Second)
	_, err := r.Resolve(context.Background(), m, proof)
	assert.ErrorIs(t, err, domain.ErrQuorumNotReached)

	// Control: the same proof timestamped inside the window resolves.
	proof.Timestamp = m.CreatedAt.Add(10 * time.Second)
	res, err := r.Resolve(context.Background(), m, proof)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionPathProof, res.Path)
}

func TestResolveDisputesWhenBothPathsFail(t *testing.T) {
	gov := &recordingGovernance{}
	collector := NewCollector(acceptAllVerifier{}, testLogger())
	r := newTestResolver(stubProofVerifier{valid: false}, collector, gov)

	_, err := r.Resolve(context.Background(), resolvingMarket(), validProof())
	assert.ErrorIs(t, err, domain.ErrQuorumNotReached)
	assert.Equal(t, []string{"mkt-1"}, gov.disputed)
}

func TestResolveOnce(t *testing.T) {
	r := newTestResolver(stubProofVerifier{outcome: 0, valid: true}, nil, nil)

	m := resolvingMarket()
	m.Status = domain.MarketStatusResolved
	m.WinningOutcome = 0
	_, err := r.Resolve(context.Background(), m, validProof())
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestResolveNoProofUsesConsensus(t *testing.T) {
	collector := NewCollector(acceptAllVerifier{}, testLogger())
	require.NoError(t, collector.Submit(att("mkt-1", "src-a", 0)))
	require.NoError(t, collector.Submit(att("mkt-1", "src-b", 0)))
	require.NoError(t, collector.Submit(att("mkt-1", "src-c", 0)))

	r := newTestResolver(stubProofVerifier{}, collector, nil)
	res, err := r.Resolve(context.Background(), resolvingMarket(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Outcome)
	assert.Equal(t, domain.ResolutionPathConsensus, res.Path)
}
