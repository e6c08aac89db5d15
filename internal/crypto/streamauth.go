package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// StreamAuth authenticates settlement stream payloads with HMAC-SHA256 so
// downstream ledger consumers can reject tampered or foreign messages.
type StreamAuth struct {
	secret []byte
}

// NewStreamAuth creates a StreamAuth from a shared secret.
func NewStreamAuth(secret string) *StreamAuth {
	return &StreamAuth{secret: []byte(secret)}
}

// Sign returns the base64 HMAC-SHA256 tag for a payload.
func (a *StreamAuth) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a payload against its tag in constant time.
func (a *StreamAuth) Verify(payload []byte, tag string) error {
	want, err := base64.StdEncoding.DecodeString(tag)
	if err != nil {
		return fmt.Errorf("crypto: decoding stream tag: %w", err)
	}
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), want) {
		return fmt.Errorf("crypto: stream tag mismatch")
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (a *StreamAuth) String() string {
	if len(a.secret) <= 4 {
		return "StreamAuth{secret=****}"
	}
	return fmt.Sprintf("StreamAuth{secret=%s****}", a.secret[:2])
}
