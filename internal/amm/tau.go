// Package amm implements the micro-tau automated market maker used to price
// flash markets: a time-derived concentration parameter and a Newton-Raphson
// trade solver over a normal-distribution bonding curve.
package amm

const (
	// TauCoefficient scales the normalized remaining time into the
	// concentration parameter.
	TauCoefficient = 0.0001

	// TauReferenceWindow is the reference window, in seconds, that remaining
	// time is normalized against.
	TauReferenceWindow = 60.0
)

// Tau derives the per-market liquidity-concentration parameter from remaining
// time. Negative inputs clamp to zero; tau(0) == 0 means fully concentrated
// liquidity, which the solver treats as a boundary condition rather than an
// error. Pure function, no side effects.
func Tau(timeLeftSeconds int64) float64 {
	if timeLeftSeconds < 0 {
		timeLeftSeconds = 0
	}
	return TauCoefficient * float64(timeLeftSeconds) / TauReferenceWindow
}
