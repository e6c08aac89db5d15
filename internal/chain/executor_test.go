package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashverse/flashcore/internal/domain"
)

type fakeAmplifier struct {
	name      string
	failApply bool
	calls     *[]string
}

func (f *fakeAmplifier) Apply(_ context.Context, marketID string, _ float64) error {
	*f.calls = append(*f.calls, "apply:"+f.name)
	if f.failApply {
		return errors.New("venue unavailable")
	}
	return nil
}

func (f *fakeAmplifier) Revert(_ context.Context, marketID string, _ float64) error {
	*f.calls = append(*f.calls, "revert:"+f.name)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func steps(actions ...domain.ChainAction) []domain.ChainStep {
	out := make([]domain.ChainStep, len(actions))
	for i, a := range actions {
		out[i] = domain.ChainStep{Action: a}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	e := NewExecutor(nil, testLogger())

	tests := []struct {
		name       string
		base       float64
		tau        float64
		steps      []domain.ChainStep
		wantLev    float64
		wantCapped bool
	}{
		{
			name:    "no steps no tau",
			base:    10,
			wantLev: 10,
		},
		{
			name:    "full chain with time bonus",
			base:    100,
			tau:     0.00005,
			steps:   steps(domain.ChainActionAmplifyA, domain.ChainActionAmplifyB, domain.ChainActionAmplifyC),
			wantLev: 212.85, // 100 * 1.5 * 1.2 * 1.1 * (1 + 0.00005*1500)
		},
		{
			name:       "clamped at global cap",
			base:       300,
			steps:      steps(domain.ChainActionAmplifyA, domain.ChainActionAmplifyA),
			wantLev:    domain.GlobalMaxLeverage,
			wantCapped: true,
		},
		{
			name:    "unknown action is neutral",
			base:    50,
			steps:   steps(domain.ChainAction("bogus")),
			wantLev: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Evaluate(tt.base, tt.tau, tt.steps)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLev, res.EffectiveLeverage, 1e-9)
			assert.Equal(t, tt.wantCapped, res.Capped)
			assert.Equal(t, len(tt.steps), res.StepsApplied)
		})
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := NewExecutor(nil, testLogger())
	chain := steps(domain.ChainActionAmplifyB, domain.ChainActionAmplifyC)
	a, err := e.Evaluate(42, 0.001, chain)
	require.NoError(t, err)
	b, err := e.Evaluate(42, 0.001, chain)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEvaluateTooLong(t *testing.T) {
	e := NewExecutor(nil, testLogger())
	long := steps(
		domain.ChainActionAmplifyA, domain.ChainActionAmplifyB,
		domain.ChainActionAmplifyC, domain.ChainActionAmplifyA,
		domain.ChainActionAmplifyB, domain.ChainActionAmplifyC,
	)
	_, err := e.Evaluate(10, 0, long)
	assert.ErrorIs(t, err, domain.ErrChainTooLong)

	_, err = e.Execute(context.Background(), "mkt-1", 10, 0, 100, long)
	assert.ErrorIs(t, err, domain.ErrChainTooLong)
}

func TestExecuteAppliesInOrder(t *testing.T) {
	var calls []string
	e := NewExecutor(map[domain.ChainAction]domain.Amplifier{
		domain.ChainActionAmplifyA: &fakeAmplifier{name: "a", calls: &calls},
		domain.ChainActionAmplifyB: &fakeAmplifier{name: "b", calls: &calls},
	}, testLogger())

	res, err := e.Execute(context.Background(), "mkt-1", 100, 0,
		250, steps(domain.ChainActionAmplifyA, domain.ChainActionAmplifyB))
	require.NoError(t, err)
	assert.InDelta(t, 180.0, res.EffectiveLeverage, 1e-9)
	assert.Equal(t, []string{"apply:a", "apply:b"}, calls)
}

func TestExecuteUnwindsReverseOrderOnFailure(t *testing.T) {
	var calls []string
	e := NewExecutor(map[domain.ChainAction]domain.Amplifier{
		domain.ChainActionAmplifyA: &fakeAmplifier{name: "a", calls: &calls},
		domain.ChainActionAmplifyB: &fakeAmplifier{name: "b", calls: &calls},
		domain.ChainActionAmplifyC: &fakeAmplifier{name: "c", failApply: true, calls: &calls},
	}, testLogger())

	_, err := e.Execute(context.Background(), "mkt-1", 100, 0, 250,
		steps(domain.ChainActionAmplifyA, domain.ChainActionAmplifyB, domain.ChainActionAmplifyC))
	require.ErrorIs(t, err, domain.ErrChainStepFailed)
	assert.Equal(t, []string{
		"apply:a", "apply:b", "apply:c",
		"revert:b", "revert:a",
	}, calls)
}

func TestExecuteUnboundActionSkipsVenue(t *testing.T) {
	var calls []string
	e := NewExecutor(map[domain.ChainAction]domain.Amplifier{
		domain.ChainActionAmplifyA: &fakeAmplifier{name: "a", calls: &calls},
	}, testLogger())

	res, err := e.Execute(context.Background(), "mkt-1", 10, 0, 50,
		steps(domain.ChainActionAmplifyA, domain.ChainActionAmplifyC))
	require.NoError(t, err)
	assert.InDelta(t, 16.5, res.EffectiveLeverage, 1e-9)
	assert.Equal(t, []string{"apply:a"}, calls)
}
