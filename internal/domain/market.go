package domain

import (
	"math"
	"time"
)

// MarketStatus represents the lifecycle state of a flash market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusResolving MarketStatus = "resolving"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusDisputed  MarketStatus = "disputed"
)

const (
	// MinOutcomes and MaxOutcomes bound the outcome set fixed at creation.
	MinOutcomes = 2
	MaxOutcomes = 10

	// MaxMarketDuration is the longest remaining-time a flash market may be
	// created with, in seconds.
	MaxMarketDuration = 14400

	// ProbabilityEpsilon is the tolerance for the probability-sum invariant.
	ProbabilityEpsilon = 1e-9
)

// Outcome is one entry in a market's mutually exclusive outcome set. Owned
// exclusively by its parent Market.
type Outcome struct {
	Name        string
	Probability float64
	Odds        float64 // inverse of Probability
	Volume      float64
	Backers     int
}

// Market is a short-lived ("flash") prediction market priced by the micro-tau
// AMM. The outcome set is fixed at creation; once resolved it is immutable.
type Market struct {
	ID              string
	ParentID        string // weak back-reference, empty when top-level
	Title           string
	Category        string
	Tau             float64
	TimeLeft        int64 // seconds, monotonically non-increasing, never negative
	Outcomes        []Outcome
	TotalVolume     float64
	LeverageCeiling float64
	Status          MarketStatus
	WinningOutcome  int    // index into Outcomes, -1 until resolved
	ProofHash       []byte // commitment to the resolving proof, nil until resolved
	ResolutionPath  ResolutionPath
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// LeverageCeilingFor returns the market leverage ceiling for a remaining-time
// bucket. Tighter windows permit higher ceilings.
func LeverageCeilingFor(timeLeft int64) float64 {
	switch {
	case timeLeft <= 60:
		return 500
	case timeLeft <= 600:
		return 250
	case timeLeft <= 1800:
		return 150
	case timeLeft <= 3600:
		return 100
	default:
		return 75
	}
}

// NormalizeProbabilities rescales the outcome probabilities so they sum to 1,
// and refreshes the derived odds. Zero-sum inputs reset to the uniform
// distribution.
func (m *Market) NormalizeProbabilities() {
	var sum float64
	for i := range m.Outcomes {
		sum += m.Outcomes[i].Probability
	}
	n := float64(len(m.Outcomes))
	for i := range m.Outcomes {
		if sum <= 0 {
			m.Outcomes[i].Probability = 1 / n
		} else {
			m.Outcomes[i].Probability /= sum
		}
		if m.Outcomes[i].Probability > 0 {
			m.Outcomes[i].Odds = 1 / m.Outcomes[i].Probability
		} else {
			m.Outcomes[i].Odds = math.Inf(1)
		}
	}
}

// ProbabilitySumOK reports whether the probability-sum invariant holds.
func (m *Market) ProbabilitySumOK() bool {
	var sum float64
	for i := range m.Outcomes {
		sum += m.Outcomes[i].Probability
	}
	return math.Abs(sum-1) <= ProbabilityEpsilon*float64(len(m.Outcomes)+1)
}

// Tradeable reports whether the market currently accepts trades.
func (m *Market) Tradeable() bool {
	return m.Status == MarketStatusOpen && m.TimeLeft > 0
}
