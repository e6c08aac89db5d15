package domain

import "time"

// ResolutionPath records which path finalized a market's outcome. Once set it
// is immutable; a later "better" proof never re-resolves a market.
type ResolutionPath string

const (
	ResolutionPathNone      ResolutionPath = ""
	ResolutionPathProof     ResolutionPath = "proof"
	ResolutionPathConsensus ResolutionPath = "consensus"
)

// ResolutionProof is a succinct cryptographic proof with its declared public
// inputs. The core verifies it; it never produces proofs itself.
type ResolutionProof struct {
	Proof       []byte
	MarketID    string
	OutcomeHash []byte
	Timestamp   time.Time
}

// Attestation is one signed outcome claim from an independent source. The
// signature is secp256k1 over the claim digest and must recover to the
// source's registered address.
type Attestation struct {
	MarketID  string
	Outcome   int
	Timestamp time.Time
	SourceID  string
	Signature []byte
}

// QuorumSize is the minimum number of distinct agreeing attestation sources
// for the consensus path.
const QuorumSize = 3

// Payout is one position's share of a settlement.
type Payout struct {
	PositionID string
	Owner      string
	Amount     float64
}

// Settlement is the finalized record emitted to the ledger collaborator.
// EmittedAt is nil until the record has actually reached the ledger stream;
// the ledger sweep re-emits anything still nil.
type Settlement struct {
	MarketID   string
	Outcome    int
	Path       ResolutionPath
	ProofHash  []byte
	Payouts    []Payout
	ResolvedAt time.Time
	EmittedAt  *time.Time
}
