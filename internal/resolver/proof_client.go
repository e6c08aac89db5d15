package resolver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flashverse/flashcore/internal/domain"
)

// ProofClient verifies resolution proofs against the external verification
// service. The core never checks proofs itself; it submits the proof with
// its declared public inputs and trusts the verifier's verdict within the
// proof time budget.
type ProofClient struct {
	baseURL string
	client  *http.Client
}

// NewProofClient creates a ProofClient for the given service base URL. The
// HTTP timeout is left to the per-call context, which the resolver bounds
// with the proof budget.
func NewProofClient(baseURL string) *ProofClient {
	return &ProofClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type proofRequest struct {
	Proof       string `json:"proof"` // base64
	MarketID    string `json:"market_id"`
	OutcomeHash string `json:"outcome_hash"` // hex
	Timestamp   int64  `json:"timestamp"`    // unix seconds
}

type proofResponse struct {
	Outcome int  `json:"outcome"`
	Valid   bool `json:"valid"`
}

// Verify submits the proof to the verification service.
func (c *ProofClient) Verify(ctx context.Context, proof domain.ResolutionProof) (int, bool, error) {
	body, err := json.Marshal(proofRequest{
		Proof:       base64.StdEncoding.EncodeToString(proof.Proof),
		MarketID:    proof.MarketID,
		OutcomeHash: hex.EncodeToString(proof.OutcomeHash),
		Timestamp:   proof.Timestamp.Unix(),
	})
	if err != nil {
		return 0, false, fmt.Errorf("resolver: marshal proof request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/verify", bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("resolver: create proof request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("resolver: proof service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, false, fmt.Errorf("resolver: proof service status %d: %s", resp.StatusCode, string(respBody))
	}

	var out proofResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, false, fmt.Errorf("resolver: decode proof response: %w", err)
	}
	return out.Outcome, out.Valid, nil
}

var _ domain.ProofVerifier = (*ProofClient)(nil)
