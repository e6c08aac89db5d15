package domain

import "time"

// MarketEvent is one update pushed by the market data feed collaborator. The
// core never fetches odds itself; it only consumes these.
type MarketEvent struct {
	EventID              string
	TimeRemaining        int64 // seconds
	OutcomeCandidates    []string
	ImpliedProbabilities []float64
	Concluded            bool // early-termination signal
	ReceivedAt           time.Time
}

// StreamMessage is a durable message read from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
