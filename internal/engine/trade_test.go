package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashverse/flashcore/internal/chain"
	"github.com/flashverse/flashcore/internal/domain"
	"github.com/flashverse/flashcore/internal/risk"
)

func openParams(marketID string) OpenParams {
	return OpenParams{
		Owner:        "alice",
		MarketID:     marketID,
		OutcomeIndex: 0,
		Stake:        100,
		BaseLeverage: 50,
		Collateral:   90,
	}
}

func TestOpenPosition(t *testing.T) {
	h := newHarness(t, stubProofVerifier{})
	m := h.createMarket(t, 45)

	pos, err := h.engine.OpenPosition(context.Background(), openParams(m.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.InDelta(t, 2.0, pos.EntryOdds, 1e-9)
	// No chain steps: effective leverage is base times the time bonus.
	assert.InDelta(t, 50*(1+m.Tau*1500), pos.EffectiveLeverage, 1e-9)

	stored, err := h.positions.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.ID, stored.ID)

	after, err := h.engine.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Greater(t, after.TotalVolume, 0.0)
	assert.Equal(t, 1, after.Outcomes[0].Backers)
	assert.Greater(t, after.Outcomes[0].Probability, 0.5,
		"backed outcome must gain probability mass")
	assert.True(t, after.ProbabilitySumOK())
}

func TestOpenPositionWithChain(t *testing.T) {
	h := newHarness(t, stubProofVerifier{})
	m := h.createMarket(t, 45)

	p := openParams(m.ID)
	p.Chain = []domain.ChainStep{
		{Action: domain.ChainActionAmplifyA},
		{Action: domain.ChainActionAmplifyB},
	}
	pos, err := h.engine.OpenPosition(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 50*1.5*1.2*(1+m.Tau*1500), pos.EffectiveLeverage, 1e-9)
}

func TestOpenPositionRejections(t *testing.T) {
	h := newHarness(t, stubProofVerifier{})
	m := h.createMarket(t, 45)
	ctx := context.Background()

	t.Run("zero stake", func(t *testing.T) {
		p := openParams(m.ID)
		p.Stake = 0
		_, err := h.engine.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, domain.ErrInvalidOrderSize)
	})

	t.Run("chain too long", func(t *testing.T) {
		p := openParams(m.ID)
		for i := 0; i < domain.MaxChainSteps+1; i++ {
			p.Chain = append(p.Chain, domain.ChainStep{Action: domain.ChainActionAmplifyC})
		}
		_, err := h.engine.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, domain.ErrChainTooLong)
	})

	t.Run("undercollateralized", func(t *testing.T) {
		p := openParams(m.ID)
		p.Collateral = 10
		_, err := h.engine.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, domain.ErrUndercollateralized)
	})

	t.Run("paused", func(t *testing.T) {
		require.NoError(t, h.risk.Pause(ctx, "ops", "test"))
		_, err := h.engine.OpenPosition(ctx, openParams(m.ID))
		assert.ErrorIs(t, err, domain.ErrEmergencyPaused)
		require.NoError(t, h.risk.Unpause(ctx, "ops"))
	})

	t.Run("market resolving", func(t *testing.T) {
		require.NoError(t, h.engine.ApplyEvent(ctx, m.ID, domain.MarketEvent{Concluded: true}))
		_, err := h.engine.OpenPosition(ctx, openParams(m.ID))
		assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
	})
}

func TestOpenPositionRejectionLeavesNoState(t *testing.T) {
	h := newHarness(t, stubProofVerifier{})
	m := h.createMarket(t, 45)

	p := openParams(m.ID)
	p.Collateral = 1
	_, err := h.engine.OpenPosition(context.Background(), p)
	require.Error(t, err)

	after, err := h.engine.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Zero(t, after.TotalVolume)
	open, err := h.positions.ListOpenByMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestClosePositionEarly(t *testing.T) {
	h := newHarness(t, stubProofVerifier{})
	m := h.createMarket(t, 3600)

	p := openParams(m.ID)
	p.BaseLeverage = 5 // the hour bucket caps leverage at 100x
	pos, err := h.engine.OpenPosition(context.Background(), p)
	require.NoError(t, err)

	closed, err := h.engine.ClosePosition(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.Greater(t, closed.Payout, 0.0)

	_, err = h.engine.ClosePosition(context.Background(), pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
}

type failingCreatePositions struct {
	*memPositions
}

func (s *failingCreatePositions) Create(context.Context, domain.Position) error {
	return assert.AnError
}

type recordingAmplifier struct {
	mu      sync.Mutex
	applies int
	reverts int
}

func (a *recordingAmplifier) Apply(context.Context, string, float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applies++
	return nil
}

func (a *recordingAmplifier) Revert(context.Context, string, float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reverts++
	return nil
}

func TestOpenPositionPersistFailureUnwindsChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	amp := &recordingAmplifier{}
	exec := chain.NewExecutor(map[domain.ChainAction]domain.Amplifier{
		domain.ChainActionAmplifyA: amp,
	}, logger)

	eng := New(Deps{
		Markets:     newMemMarkets(),
		Positions:   &failingCreatePositions{newMemPositions()},
		Settlements: newMemSettlements(),
		Risk:        risk.NewController(risk.Defaults(), nil, logger),
		Chain:       exec,
		Logger:      logger,
	})
	m, err := eng.CreateMarket(context.Background(), CreateParams{
		Title:    "btc above strike",
		Category: "crypto",
		Duration: 45,
		Outcomes: []string{"yes", "no"},
	})
	require.NoError(t, err)

	p := openParams(m.ID)
	p.Chain = []domain.ChainStep{{Action: domain.ChainActionAmplifyA}}
	_, err = eng.OpenPosition(context.Background(), p)
	require.Error(t, err)

	assert.Equal(t, 1, amp.applies)
	assert.Equal(t, 1, amp.reverts,
		"venue state must not survive a failed open")
}

func TestClosePositionConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t, stubProofVerifier{})
	m := h.createMarket(t, 3600)

	p := openParams(m.ID)
	p.BaseLeverage = 5 // the hour bucket caps leverage at 100x
	pos, err := h.engine.OpenPosition(context.Background(), p)
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ClosePosition(context.Background(), pos.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrPositionClosed)
		rejected++
	}
	assert.Equal(t, 1, succeeded, "exactly one close may commit")
	assert.Equal(t, 1, rejected)
}
