package domain

import "time"

// PositionStatus tracks whether a position is open, settled, or liquidated.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "open"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

// Position is a stake on one outcome of a flash market. It is created when the
// trade solver accepts an order and is closed exactly once, either by
// resolution payout or by liquidation.
type Position struct {
	ID                string
	Owner             string // opaque user identifier
	MarketID          string // weak reference
	OutcomeIndex      int
	Stake             float64
	BaseLeverage      float64
	EffectiveLeverage float64 // set once by the chain executor, 0 until then
	EntryOdds         float64
	Collateral        float64
	Status            PositionStatus
	OpenedAt          time.Time
	ClosedAt          *time.Time
	Payout            float64
}

// CollateralRatio returns collateral relative to stake. A positionless stake
// reports zero rather than dividing by zero.
func (p *Position) CollateralRatio() float64 {
	if p.Stake <= 0 {
		return 0
	}
	return p.Collateral / p.Stake
}
