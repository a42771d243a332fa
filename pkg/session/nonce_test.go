package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nonceTestSecret = []byte("test-shared-secret")

func TestNonce_CurrentHour(t *testing.T) {
	issuer := NewNonceIssuer(nonceTestSecret)
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)

	nonce := issuer.Generate("sess-1", now)
	require.NotEmpty(t, nonce)
	assert.True(t, issuer.Verify("sess-1", nonce, now))
}

func TestNonce_PreviousHourTolerated(t *testing.T) {
	issuer := NewNonceIssuer(nonceTestSecret)
	generated := time.Date(2025, 6, 1, 14, 59, 0, 0, time.UTC)

	nonce := issuer.Generate("sess-1", generated)

	// Checked just after the hour boundary.
	assert.True(t, issuer.Verify("sess-1", nonce, generated.Add(2*time.Minute)))
	// Checked a full hour later, still inside the H+1 window.
	assert.True(t, issuer.Verify("sess-1", nonce, generated.Add(time.Hour)))
}

func TestNonce_TwoHoursRejected(t *testing.T) {
	issuer := NewNonceIssuer(nonceTestSecret)
	generated := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	nonce := issuer.Generate("sess-1", generated)
	assert.False(t, issuer.Verify("sess-1", nonce, generated.Add(2*time.Hour)))
}

func TestNonce_BoundToSession(t *testing.T) {
	issuer := NewNonceIssuer(nonceTestSecret)
	now := time.Now()

	nonce := issuer.Generate("sess-1", now)
	assert.False(t, issuer.Verify("sess-2", nonce, now))
}

func TestNonce_BoundToSecret(t *testing.T) {
	now := time.Now()

	nonce := NewNonceIssuer(nonceTestSecret).Generate("sess-1", now)
	other := NewNonceIssuer([]byte("different-secret"))
	assert.False(t, other.Verify("sess-1", nonce, now))
}

func TestNonce_GarbageRejected(t *testing.T) {
	issuer := NewNonceIssuer(nonceTestSecret)
	assert.False(t, issuer.Verify("sess-1", "", time.Now()))
	assert.False(t, issuer.Verify("sess-1", "not-a-nonce", time.Now()))
}
