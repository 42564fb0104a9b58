// Package pkce produces Proof Key for Code Exchange verifier/challenge pairs (RFC 7636).
package pkce

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/oauth2"
)

// Unreserved is the RFC 3986 unreserved alphabet allowed in a code verifier.
const Unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const (
	MinVerifierLength     = 43
	MaxVerifierLength     = 128
	DefaultVerifierLength = 64

	// MethodS256 is the only challenge method spx sends.
	MethodS256 = "S256"
)

// Pair is one verifier and its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
}

// RandomString returns n characters drawn from [Unreserved] using crypto/rand.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid length %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = Unreserved[int(b)%len(Unreserved)]
	}
	return string(out), nil
}

// NewVerifier returns a verifier of length n, which must be within 43..128.
func NewVerifier(n int) (string, error) {
	if n < MinVerifierLength || n > MaxVerifierLength {
		return "", fmt.Errorf("verifier length %d outside %d..%d", n, MinVerifierLength, MaxVerifierLength)
	}
	return RandomString(n)
}

// Challenge derives the S256 challenge: base64url, no padding, of SHA-256(verifier).
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// NewPair generates a verifier of [DefaultVerifierLength] and its challenge.
func NewPair() (Pair, error) {
	v, err := NewVerifier(DefaultVerifierLength)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Verifier: v, Challenge: Challenge(v)}, nil
}
