package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"
)

// nonceKeyInfo is the HKDF info string binding derived keys to this use.
const nonceKeyInfo = "statesync nonce v1"

// NonceIssuer derives short-lived proof tokens from a shared secret and
// a session ID. A nonce is valid for its whole hour bucket plus the
// following hour, tolerating requests that straddle a clock boundary.
// The hour-wide replay window matches the wire protocol's contract and
// is not tightened here.
type NonceIssuer struct {
	key []byte
}

// NewNonceIssuer creates an issuer. The per-issuer key is derived from
// the shared secret with HKDF-SHA256 so the raw secret is never used as
// a MAC key directly.
func NewNonceIssuer(secret []byte) *NonceIssuer {
	key := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(nonceKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		// HKDF over SHA-256 cannot fail for a single block read.
		panic("session: hkdf: " + err.Error())
	}
	return &NonceIssuer{key: key}
}

// Generate returns the nonce for sessionID at now's hour bucket.
func (n *NonceIssuer) Generate(sessionID string, now time.Time) string {
	return n.derive(sessionID, hourBucket(now))
}

// Verify checks nonce against the current and the immediately preceding
// hour bucket, in constant time.
func (n *NonceIssuer) Verify(sessionID, nonce string, now time.Time) bool {
	bucket := hourBucket(now)
	current := hmac.Equal([]byte(nonce), []byte(n.derive(sessionID, bucket)))
	previous := hmac.Equal([]byte(nonce), []byte(n.derive(sessionID, bucket-1)))
	return current || previous
}

// derive computes HMAC-SHA256(key, sessionID || ":" || bucket) in hex.
func (n *NonceIssuer) derive(sessionID string, bucket int64) string {
	mac := hmac.New(sha256.New, n.key)
	mac.Write([]byte(sessionID))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// hourBucket returns the number of whole hours since the Unix epoch.
func hourBucket(t time.Time) int64 {
	return t.UTC().Unix() / 3600
}
