package errorexplorer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signature and timestamp headers attached to signed webhook requests.
const (
	SignatureHeader = "X-Error-Explorer-Signature"
	TimestampHeader = "X-Error-Explorer-Timestamp"

	// DefaultSignatureMaxAge bounds how old a signed request may be before
	// verification rejects it. The timestamp binding is the replay defense:
	// a valid signature alone is not enough without a fresh timestamp.
	DefaultSignatureMaxAge = 300 * time.Second
)

// Signer computes replay-resistant HMAC-SHA256 signatures over outbound
// payloads. Signatures cover the string "{timestamp}.{payload}" so a
// captured request cannot be replayed outside the freshness window.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer for the given shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Sign computes the lowercase-hex HMAC-SHA256 of "{timestamp}.{payload}".
func (s *Signer) Sign(payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildHeaders returns the signature and timestamp headers for a payload
// using the current time.
func (s *Signer) BuildHeaders(payload []byte) map[string]string {
	ts := s.now().Unix()
	return map[string]string{
		SignatureHeader: s.Sign(payload, ts),
		TimestampHeader: fmt.Sprintf("%d", ts),
	}
}

// Verify recomputes the expected signature and compares it in constant
// time, and separately rejects timestamps older (or newer) than maxAge.
// Intended for server-side validation of incoming webhooks.
func (s *Signer) Verify(payload []byte, signature string, timestamp int64, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultSignatureMaxAge
	}

	age := s.now().Unix() - timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > maxAge {
		return false
	}

	expected := s.Sign(payload, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
