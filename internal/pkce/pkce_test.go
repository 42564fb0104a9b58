package pkce

import (
	"strings"
	"testing"
)

func TestChallenge(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := Challenge(verifier); got != want {
		t.Errorf("Challenge() = %v, want %v", got, want)
	}
}

func TestNewVerifier(t *testing.T) {
	tc := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{name: "minimum", length: 43},
		{name: "default", length: DefaultVerifierLength},
		{name: "maximum", length: 128},
		{name: "too short", length: 42, wantErr: true},
		{name: "too long", length: 129, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.length)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVerifier() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(v) != tt.length {
				t.Errorf("expected length %d, got %d", tt.length, len(v))
			}
			for _, r := range v {
				if !strings.ContainsRune(Unreserved, r) {
					t.Fatalf("verifier contains reserved character %q", r)
				}
			}
		})
	}
}

func TestNewPair(t *testing.T) {
	p, err := NewPair()
	if err != nil {
		t.Fatalf("NewPair() error = %v", err)
	}
	if p.Challenge != Challenge(p.Verifier) {
		t.Error("challenge does not match verifier")
	}
	if strings.ContainsAny(p.Challenge, "+/=") {
		t.Errorf("challenge is not base64url without padding: %s", p.Challenge)
	}

	q, _ := NewPair()
	if p.Verifier == q.Verifier {
		t.Error("expected distinct verifiers")
	}
}

func TestRandomString(t *testing.T) {
	if _, err := RandomString(0); err == nil {
		t.Error("expected error for zero length")
	}
	s, err := RandomString(16)
	if err != nil {
		t.Fatalf("RandomString() error = %v", err)
	}
	if len(s) != 16 {
		t.Errorf("expected 16 chars, got %d", len(s))
	}
}
