package domain

// ChainAction identifies one amplification step kind in a leverage chain.
// The three kinds generalize the borrow / liquidate / stake operations of the
// underlying venues.
type ChainAction string

const (
	ChainActionAmplifyA ChainAction = "amplify_a" // borrow-equivalent
	ChainActionAmplifyB ChainAction = "amplify_b" // liquidate-equivalent
	ChainActionAmplifyC ChainAction = "amplify_c" // stake-equivalent
)

// Fixed per-step multipliers. Chain evaluation is idempotent: the same step
// sequence on the same base always yields the same multiplier.
const (
	AmplifyAMultiplier = 1.5
	AmplifyBMultiplier = 1.2
	AmplifyCMultiplier = 1.1
)

// MaxChainSteps bounds a leverage chain. Exceeding it is a rejected
// operation, never a silent truncation.
const MaxChainSteps = 5

// GlobalMaxLeverage is the hard cap on effective leverage regardless of the
// computed chain value. Capping is a clamp, not an error.
const GlobalMaxLeverage = 500.0

// ChainStep is one ordered element of a leverage chain.
type ChainStep struct {
	Action ChainAction
}

// Multiplier returns the fixed multiplier for the step's action kind, or 1
// for an unknown action.
func (s ChainStep) Multiplier() float64 {
	switch s.Action {
	case ChainActionAmplifyA:
		return AmplifyAMultiplier
	case ChainActionAmplifyB:
		return AmplifyBMultiplier
	case ChainActionAmplifyC:
		return AmplifyCMultiplier
	default:
		return 1
	}
}

// ChainResult is the outcome of evaluating a full chain.
type ChainResult struct {
	EffectiveLeverage float64
	StepsApplied      int
	Capped            bool
}
