// Package hash signs metric streams with HMAC-SHA256.
package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// ComputeHash returns the hex HMAC-SHA256 of data under key, or an empty
// string when key is empty.
//
// Example:
//
//	sig := hash.ComputeHash(body, "my-secret-key")
//	req.Header.Set("HashSHA256", sig)
func ComputeHash(data []byte, key string) string {
	if key == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(key))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateHash reports whether receivedHash is the HMAC of data under key.
//
// Validation Rules:
//   - If key is empty: Returns true (signing disabled)
//   - If receivedHash is empty: Returns false
//   - Otherwise: constant-time comparison with the computed hash
func ValidateHash(data []byte, key string, receivedHash string) bool {
	if key == "" {
		return true
	}
	if receivedHash == "" {
		return false
	}
	return hmac.Equal([]byte(ComputeHash(data, key)), []byte(receivedHash))
}

// Signer computes the HMAC of a stream written in pieces, so a body can be
// signed without holding all of it in memory. A Signer with an empty key
// ignores writes and produces an empty signature.
type Signer struct {
	mac hash.Hash
}

// NewSigner returns a Signer for key.
func NewSigner(key string) *Signer {
	if key == "" {
		return &Signer{}
	}
	return &Signer{mac: hmac.New(sha256.New, []byte(key))}
}

// Write adds p to the signed stream. It never fails.
func (s *Signer) Write(p []byte) (int, error) {
	if s.mac != nil {
		s.mac.Write(p)
	}
	return len(p), nil
}

// Sum returns the hex signature of everything written so far.
func (s *Signer) Sum() string {
	if s.mac == nil {
		return ""
	}
	return hex.EncodeToString(s.mac.Sum(nil))
}

// Verify reports whether receivedHash matches the stream written so far.
// It always succeeds when the signer has no key.
func (s *Signer) Verify(receivedHash string) bool {
	if s.mac == nil {
		return true
	}
	if receivedHash == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sum()), []byte(receivedHash))
}
