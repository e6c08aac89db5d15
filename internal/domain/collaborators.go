package domain

import (
	"context"
	"io"
)

// Ledger receives finalized settlement records. The core emits to it and
// never queries it.
type Ledger interface {
	EmitSettlement(ctx context.Context, s Settlement) error
}

// ProofVerifier checks a resolution proof against its declared public inputs.
// Implementations are expected to be slow relative to trading and are always
// called with a bounded context.
type ProofVerifier interface {
	Verify(ctx context.Context, proof ResolutionProof) (outcome int, valid bool, err error)
}

// AttestationVerifier validates an attestation's signature against the
// registered key for its source.
type AttestationVerifier interface {
	VerifyAttestation(att Attestation) error
}

// Amplifier is one external leverage-chain collaborator (the generalized
// borrow / liquidate / stake venue). Apply may be slow or fail; Revert is its
// inverse and is called during chain unwind in reverse order.
type Amplifier interface {
	Apply(ctx context.Context, marketID string, amount float64) error
	Revert(ctx context.Context, marketID string, amount float64) error
}

// GovernanceNotifier is told about disputed markets, which require manual
// resolution outside this core.
type GovernanceNotifier interface {
	NotifyDisputed(ctx context.Context, marketID string, reason string) error
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports resolved market history to blob storage after the dispute
// window has elapsed.
type Archiver interface {
	ArchiveMarket(ctx context.Context, m Market, s Settlement) error
}
