package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashverse/flashcore/internal/domain"
)

// Message types carried on the feed websocket.
const (
	msgTypeMarketUpdate = "market_update"
	msgTypeAttestation  = "attestation"
)

// MarketUpdateMessage is the wire shape of one market data update.
type MarketUpdateMessage struct {
	Type          string    `json:"type"`
	MarketID      string    `json:"market_id"`
	EventID       string    `json:"event_id"`
	TimeRemaining int64     `json:"time_remaining"`
	Outcomes      []string  `json:"outcomes,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Concluded     bool      `json:"concluded"`
	Timestamp     string    `json:"timestamp,omitempty"`
}

// AttestationMessage is the wire shape of one signed outcome claim.
type AttestationMessage struct {
	Type      string `json:"type"`
	MarketID  string `json:"market_id"`
	Outcome   int    `json:"outcome"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	SourceID  string `json:"source_id"`
	Signature string `json:"signature"` // hex, 0x-prefixed or bare
}

// ToDomain converts a market update into the event shape the engine consumes.
func (m *MarketUpdateMessage) ToDomain() domain.MarketEvent {
	received := time.Now()
	if m.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
			received = t
		}
	}
	return domain.MarketEvent{
		EventID:              m.EventID,
		TimeRemaining:        m.TimeRemaining,
		OutcomeCandidates:    m.Outcomes,
		ImpliedProbabilities: m.Probabilities,
		Concluded:            m.Concluded,
		ReceivedAt:           received,
	}
}

// ToDomain converts an attestation message into the claim the resolver
// verifies. The signature is decoded from hex; verification happens later.
func (m *AttestationMessage) ToDomain() domain.Attestation {
	return domain.Attestation{
		MarketID:  m.MarketID,
		Outcome:   m.Outcome,
		Timestamp: time.Unix(m.Timestamp, 0).UTC(),
		SourceID:  m.SourceID,
		Signature: common.FromHex(m.Signature),
	}
}

// parseEnvelope extracts the message type so the read loop can route raw
// frames without committing to a full parse.
func parseEnvelope(raw []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("feed: parse envelope: %w", err)
	}
	return strings.TrimSpace(env.Type), nil
}
