package amm

import "math"

// The solver evaluates the standard normal CDF and PDF through a fixed
// 256-point lookup table over [-4, 4] with linear interpolation between
// entries. The table is filled once at package init, so repeated evaluations
// of the same input are bit-identical for the life of the process.
const (
	normTableSize = 256
	normTableMin  = -4.0
	normTableMax  = 4.0
)

var (
	normTableStep float64
	normCDFTable  [normTableSize]float64
	normPDFTable  [normTableSize]float64
)

func init() {
	normTableStep = (normTableMax - normTableMin) / float64(normTableSize-1)
	invSqrt2Pi := 1.0 / math.Sqrt(2.0*math.Pi)
	for i := 0; i < normTableSize; i++ {
		z := normTableMin + float64(i)*normTableStep
		normPDFTable[i] = invSqrt2Pi * math.Exp(-0.5*z*z)
		normCDFTable[i] = 0.5 * (1.0 + math.Erf(z/math.Sqrt2))
	}
}

// NormCDF returns the standard normal CDF at z. Inputs outside the table
// range saturate to 0 or 1; the truncated tail mass is below 1e-4, inside the
// solver's convergence tolerance.
func NormCDF(z float64) float64 {
	if z <= normTableMin {
		return 0.0
	}
	if z >= normTableMax {
		return 1.0
	}
	return normLookup(&normCDFTable, z)
}

// NormPDF returns the standard normal PDF at z, zero outside the table range.
func NormPDF(z float64) float64 {
	if z <= normTableMin || z >= normTableMax {
		return 0.0
	}
	return normLookup(&normPDFTable, z)
}

func normLookup(table *[normTableSize]float64, z float64) float64 {
	pos := (z - normTableMin) / normTableStep
	i := int(pos)
	if i >= normTableSize-1 {
		return table[normTableSize-1]
	}
	frac := pos - float64(i)
	return table[i] + frac*(table[i+1]-table[i])
}
