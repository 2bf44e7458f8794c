package errorexplorer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_SignVerifyRoundtrip(t *testing.T) {
	s := NewSigner("shared-secret")
	payload := []byte(`{"message":"boom"}`)
	ts := time.Now().Unix()

	sig := s.Sign(payload, ts)
	assert.True(t, s.Verify(payload, sig, ts, DefaultSignatureMaxAge))
}

func TestSigner_SignatureIsLowercaseHex(t *testing.T) {
	s := NewSigner("shared-secret")

	sig := s.Sign([]byte("payload"), 1700000000)
	assert.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
	for _, c := range sig {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
	}
}

func TestSigner_Deterministic(t *testing.T) {
	s := NewSigner("shared-secret")
	payload := []byte("payload")

	assert.Equal(t, s.Sign(payload, 12345), s.Sign(payload, 12345))
	assert.NotEqual(t, s.Sign(payload, 12345), s.Sign(payload, 12346))
}

func TestSigner_VerifyRejectsTamperedPayload(t *testing.T) {
	s := NewSigner("shared-secret")
	ts := time.Now().Unix()

	sig := s.Sign([]byte("original"), ts)
	assert.False(t, s.Verify([]byte("tampered"), sig, ts, DefaultSignatureMaxAge))
}

func TestSigner_VerifyRejectsWrongSecret(t *testing.T) {
	ts := time.Now().Unix()
	payload := []byte("payload")

	sig := NewSigner("secret-a").Sign(payload, ts)
	assert.False(t, NewSigner("secret-b").Verify(payload, sig, ts, DefaultSignatureMaxAge))
}

func TestSigner_VerifyRejectsStaleTimestamp(t *testing.T) {
	s := NewSigner("shared-secret")
	payload := []byte("payload")

	stale := time.Now().Add(-10 * time.Minute).Unix()
	sig := s.Sign(payload, stale)

	// The signature itself is valid, but the timestamp is outside the
	// freshness window: replay defense.
	assert.False(t, s.Verify(payload, sig, stale, DefaultSignatureMaxAge))
	assert.True(t, s.Verify(payload, sig, stale, time.Hour))
}

func TestSigner_VerifyRejectsFutureTimestamp(t *testing.T) {
	s := NewSigner("shared-secret")
	payload := []byte("payload")

	future := time.Now().Add(10 * time.Minute).Unix()
	sig := s.Sign(payload, future)
	assert.False(t, s.Verify(payload, sig, future, DefaultSignatureMaxAge))
}

func TestSigner_BuildHeaders(t *testing.T) {
	s := NewSigner("shared-secret")
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	payload := []byte(`{"message":"boom"}`)
	headers := s.BuildHeaders(payload)

	require.Contains(t, headers, SignatureHeader)
	require.Contains(t, headers, TimestampHeader)
	assert.Equal(t, "1717236000", headers[TimestampHeader])
	assert.Equal(t, s.Sign(payload, fixed.Unix()), headers[SignatureHeader])
}
