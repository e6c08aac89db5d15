package amm

import (
	"fmt"
	"math"

	"github.com/flashverse/flashcore/internal/domain"
)

const (
	// solveEpsilon is the convergence tolerance on the Newton step.
	solveEpsilon = 1e-4

	// solveMaxIterations bounds the Newton loop. Non-convergence is not an
	// error: the best estimate is returned with Converged unset and the
	// caller decides how much to trust it.
	solveMaxIterations = 10
)

// SolveResult carries the outcome of a trade solve.
type SolveResult struct {
	// Amount is the realized execution amount after slippage.
	Amount float64
	// Slippage is the displacement the curve absorbed, in the same units as
	// the order size.
	Slippage float64
	// Iterations is the number of Newton steps taken.
	Iterations int
	// Converged reports whether the final step was within tolerance. When
	// false, Amount is a best estimate and should be treated as low
	// confidence.
	Converged bool
}

// Solve prices an order of size x against resting liquidity L at
// concentration tau. It finds the root y of
//
//	f(y) = (y - x)*Phi(z) + L*sqrt(tau)*phi(z) - y,  z = (y - x)/(L*sqrt(tau))
//
// by Newton-Raphson with f'(y) = Phi(z) - 1, then reports the execution
// amount as the order size less the absorbed displacement. tau == 0 is the
// fully-concentrated boundary and executes the order exactly with no
// slippage. Zero or negative liquidity cannot price anything.
func Solve(orderSize, liquidity, tau float64) (SolveResult, error) {
	if orderSize <= 0 {
		return SolveResult{}, fmt.Errorf("amm: solve: order size %v: %w", orderSize, domain.ErrInvalidOrderSize)
	}
	if liquidity <= 0 {
		return SolveResult{}, fmt.Errorf("amm: solve: liquidity %v: %w", liquidity, domain.ErrInsufficientLiquidity)
	}
	if tau <= 0 {
		return SolveResult{Amount: orderSize, Converged: true}, nil
	}

	scale := liquidity * math.Sqrt(tau)
	y := orderSize
	iterations := 0
	converged := false
	for i := 0; i < solveMaxIterations; i++ {
		iterations = i + 1
		z := (y - orderSize) / scale
		f := (y-orderSize)*NormCDF(z) + scale*NormPDF(z) - y
		df := NormCDF(z) - 1.0
		if math.Abs(df) < 1e-12 {
			// Derivative vanished in the saturated tail; keep the
			// current estimate.
			break
		}
		next := y - f/df
		step := next - y
		y = next
		if math.Abs(step) < solveEpsilon {
			converged = true
			break
		}
	}

	slippage := math.Abs(y)
	amount := orderSize - slippage
	if amount < 0 {
		amount = 0
	}
	return SolveResult{
		Amount:     amount,
		Slippage:   slippage,
		Iterations: iterations,
		Converged:  converged,
	}, nil
}
