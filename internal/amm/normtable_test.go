package amm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormCDF(t *testing.T) {
	for _, z := range []float64{-3.5, -2, -1.37, -0.5, 0, 0.5, 1.37, 2, 3.5} {
		exact := 0.5 * (1.0 + math.Erf(z/math.Sqrt2))
		assert.InDelta(t, exact, NormCDF(z), 1e-3, "z=%v", z)
	}
	assert.Equal(t, 0.0, NormCDF(-5))
	assert.Equal(t, 1.0, NormCDF(5))
}

func TestNormPDF(t *testing.T) {
	assert.InDelta(t, 0.39894, NormPDF(0), 1e-3)
	for _, z := range []float64{0.25, 1, 1.37, 2.5} {
		assert.InDelta(t, NormPDF(z), NormPDF(-z), 1e-9, "pdf must be symmetric at z=%v", z)
	}
	assert.Equal(t, 0.0, NormPDF(-6))
	assert.Equal(t, 0.0, NormPDF(6))
}

func TestNormCDFMonotonic(t *testing.T) {
	prev := -1.0
	for z := -4.5; z <= 4.5; z += 0.05 {
		cur := NormCDF(z)
		assert.GreaterOrEqual(t, cur, prev, "cdf must be non-decreasing at z=%v", z)
		prev = cur
	}
}

func TestNormLookupReproducible(t *testing.T) {
	for _, z := range []float64{-1.234567, 0.000123, 2.71828} {
		assert.Equal(t, NormCDF(z), NormCDF(z))
		assert.Equal(t, NormPDF(z), NormPDF(z))
	}
}
