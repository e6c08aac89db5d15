package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flashverse/flashcore/internal/chain"
	"github.com/flashverse/flashcore/internal/domain"
	"github.com/flashverse/flashcore/internal/resolver"
	"github.com/flashverse/flashcore/internal/risk"
)

type memMarkets struct {
	mu   sync.Mutex
	rows map[string]domain.Market
}

func newMemMarkets() *memMarkets { return &memMarkets{rows: make(map[string]domain.Market)} }

func (s *memMarkets) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.ID] = m
	return nil
}

func (s *memMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) ListByStatus(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.rows {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) ListByParent(_ context.Context, parentID string) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.rows {
		if m.ParentID == parentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *memMarkets) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

type memPositions struct {
	mu   sync.Mutex
	rows map[string]domain.Position
}

func newMemPositions() *memPositions { return &memPositions{rows: make(map[string]domain.Position)} }

func (s *memPositions) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[p.ID] = p
	return nil
}

func (s *memPositions) Update(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[p.ID] = p
	return nil
}

func (s *memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPositions) ListOpenByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.rows {
		if p.MarketID == marketID && p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositions) ListOpenByOwner(_ context.Context, owner string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.rows {
		if p.Owner == owner && p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

type memSettlements struct {
	mu   sync.Mutex
	rows map[string]domain.Settlement
}

func newMemSettlements() *memSettlements {
	return &memSettlements{rows: make(map[string]domain.Settlement)}
}

func (s *memSettlements) Create(_ context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[st.MarketID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[st.MarketID] = st
	return nil
}

func (s *memSettlements) GetByMarket(_ context.Context, marketID string) (domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[marketID]
	if !ok {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *memSettlements) ListSince(_ context.Context, since time.Time, _ domain.ListOpts) ([]domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Settlement
	for _, st := range s.rows {
		if !st.ResolvedAt.Before(since) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *memSettlements) ListUnemitted(_ context.Context, _ domain.ListOpts) ([]domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Settlement
	for _, st := range s.rows {
		if st.EmittedAt == nil {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *memSettlements) MarkEmitted(_ context.Context, marketID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	st.EmittedAt = &at
	s.rows[marketID] = st
	return nil
}

type recordingLedger struct {
	mu      sync.Mutex
	fail    bool
	emitted []domain.Settlement
}

func (l *recordingLedger) EmitSettlement(_ context.Context, s domain.Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return domain.ErrWSDisconnect
	}
	l.emitted = append(l.emitted, s)
	return nil
}

func (l *recordingLedger) setFail(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = fail
}

type stubProofVerifier struct {
	outcome int
	valid   bool
}

func (s stubProofVerifier) Verify(context.Context, domain.ResolutionProof) (int, bool, error) {
	return s.outcome, s.valid, nil
}

type acceptAllAttestations struct{}

func (acceptAllAttestations) VerifyAttestation(domain.Attestation) error { return nil }

type testHarness struct {
	engine      *Engine
	markets     *memMarkets
	positions   *memPositions
	settlements *memSettlements
	ledger      *recordingLedger
	collector   *resolver.Collector
	risk        *risk.Controller
}

func newHarness(t *testing.T, verifier domain.ProofVerifier) *testHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &testHarness{
		markets:     newMemMarkets(),
		positions:   newMemPositions(),
		settlements: newMemSettlements(),
		ledger:      &recordingLedger{},
		collector:   resolver.NewCollector(acceptAllAttestations{}, logger),
		risk:        risk.NewController(risk.Defaults(), nil, logger),
	}
	res := resolver.NewResolver(verifier, h.collector, nil, logger)
	res.SetWindows(50*time.Millisecond, 50*time.Millisecond)

	h.engine = New(Deps{
		Markets:     h.markets,
		Positions:   h.positions,
		Settlements: h.settlements,
		Risk:        h.risk,
		Chain:       chain.NewExecutor(nil, logger),
		Resolver:    res,
		Ledger:      h.ledger,
		Logger:      logger,
	})
	return h
}

func (h *testHarness) createMarket(t *testing.T, duration int64) domain.Market {
	t.Helper()
	m, err := h.engine.CreateMarket(context.Background(), CreateParams{
		Title:    "btc above strike",
		Category: "crypto",
		Duration: duration,
		Outcomes: []string{"yes", "no"},
	})
	require.NoError(t, err)
	return m
}
