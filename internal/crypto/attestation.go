// Package crypto provides attestation signing and verification, attestor key
// storage, and message authentication for the settlement stream.
package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/flashverse/flashcore/internal/domain"
)

// attestationPrefix domain-separates attestation digests from any other
// signed payload.
const attestationPrefix = "flashcore.attestation.v1"

// AttestationDigest computes the 32-byte digest an attestation source signs:
// keccak256(prefix || market id || outcome || unix timestamp), with the
// numeric fields big-endian padded to 32 bytes.
func AttestationDigest(att domain.Attestation) []byte {
	return ethcrypto.Keccak256(
		[]byte(attestationPrefix),
		[]byte(att.MarketID),
		pad32(big.NewInt(int64(att.Outcome))),
		pad32(big.NewInt(att.Timestamp.Unix())),
	)
}

// Registry maps attestation source ids to their registered signing
// addresses and verifies attestation signatures by public key recovery.
// Implements domain.AttestationVerifier.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]common.Address
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]common.Address)}
}

// Register binds a source id to the address its attestations must recover
// to. Re-registering replaces the previous binding.
func (r *Registry) Register(sourceID, addressHex string) error {
	if !common.IsHexAddress(addressHex) {
		return fmt.Errorf("crypto: register %s: invalid address %q", sourceID, addressHex)
	}
	r.mu.Lock()
	r.sources[sourceID] = common.HexToAddress(addressHex)
	r.mu.Unlock()
	return nil
}

// VerifyAttestation recovers the signer from the attestation signature and
// checks it against the source's registered address.
func (r *Registry) VerifyAttestation(att domain.Attestation) error {
	r.mu.RLock()
	want, ok := r.sources[att.SourceID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("crypto: source %s not registered: %w", att.SourceID, domain.ErrProofInvalid)
	}
	if len(att.Signature) != 65 {
		return fmt.Errorf("crypto: source %s: signature length %d: %w", att.SourceID, len(att.Signature), domain.ErrProofInvalid)
	}

	sig := make([]byte, 65)
	copy(sig, att.Signature)
	// Accept both {0,1} and {27,28} recovery ids.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(AttestationDigest(att), sig)
	if err != nil {
		return fmt.Errorf("crypto: source %s: recover: %w", att.SourceID, err)
	}
	got := ethcrypto.PubkeyToAddress(*pub)
	if got != want {
		return fmt.Errorf("crypto: source %s: signer %s is not %s: %w", att.SourceID, got, want, domain.ErrProofInvalid)
	}
	return nil
}

// Sources returns the registered source ids.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for id := range r.sources {
		out = append(out, id)
	}
	return out
}

// AttestationSigner signs attestations with a secp256k1 key. Used by
// attestation source tooling and tests; the core itself only verifies.
type AttestationSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewAttestationSigner creates a signer from a hex-encoded private key, with
// or without the 0x prefix.
func NewAttestationSigner(privateKeyHex string) (*AttestationSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &AttestationSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the signer's address as a hex string.
func (s *AttestationSigner) Address() string {
	return s.address.Hex()
}

// Sign fills in the attestation's signature over its digest.
func (s *AttestationSigner) Sign(att domain.Attestation) (domain.Attestation, error) {
	sig, err := ethcrypto.Sign(AttestationDigest(att), s.privateKey)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("crypto: sign attestation: %w", err)
	}
	att.Signature = sig
	return att, nil
}

func pad32(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
