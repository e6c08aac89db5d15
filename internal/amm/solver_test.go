package amm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashverse/flashcore/internal/domain"
)

func TestSolveValidation(t *testing.T) {
	_, err := Solve(0, 1000, 0.001)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderSize)

	_, err = Solve(-50, 1000, 0.001)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderSize)

	_, err = Solve(100, 0, 0.001)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

	_, err = Solve(100, -1, 0.001)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}

func TestSolveZeroTauExecutesExactly(t *testing.T) {
	for _, order := range []float64{1, 100, 12345.678} {
		res, err := Solve(order, 10000, 0)
		require.NoError(t, err)
		assert.Equal(t, order, res.Amount, "tau==0 must execute the order with no slippage")
		assert.Zero(t, res.Slippage)
		assert.True(t, res.Converged)
		assert.Zero(t, res.Iterations)
	}
}

func TestSolveLowTauNearLinear(t *testing.T) {
	// 30s remaining against deep liquidity: slippage stays a few percent.
	res, err := Solve(100, 10000, Tau(30))
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, solveMaxIterations)
	assert.InEpsilon(t, 100.0, res.Amount, 0.05)
	assert.Less(t, res.Amount, 100.0, "positive tau must cost some slippage")
}

func TestSolveSlippageGrowsWithTau(t *testing.T) {
	low, err := Solve(100, 10000, Tau(30))
	require.NoError(t, err)
	high, err := Solve(100, 10000, Tau(600))
	require.NoError(t, err)
	assert.Greater(t, high.Slippage, low.Slippage)
	assert.LessOrEqual(t, high.Amount, low.Amount)
}

func TestSolveReproducible(t *testing.T) {
	a, err := Solve(250, 5000, Tau(120))
	require.NoError(t, err)
	b, err := Solve(250, 5000, Tau(120))
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical inputs must solve bit-identically")
}

func TestSolveAmountNeverNegative(t *testing.T) {
	// Shallow order against very deep liquidity at high tau displaces the
	// curve past the order size; the execution amount floors at zero.
	res, err := Solve(10, 100000, Tau(3600))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Amount, 0.0)
}
