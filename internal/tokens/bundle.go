// Package tokens holds the credential bundle and its durable local persistence.
package tokens

import (
	"time"

	"golang.org/x/oauth2"
)

// DefaultSkew is subtracted from the nominal expiry so spx never races the server's own clock.
const DefaultSkew = 60 * time.Second

// Bundle is the access/refresh token pair plus expiry bookkeeping.
//
// ObtainedAt is milliseconds since the epoch; ExpiresIn is seconds.
type Bundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	ObtainedAt   int64  `json:"obtained_at"`
}

// ExpiresAt returns the instant after which the bundle is treated as expired.
func (b Bundle) ExpiresAt(skew time.Duration) time.Time {
	return time.UnixMilli(b.ObtainedAt + b.ExpiresIn*1000 - skew.Milliseconds())
}

// HasRefreshToken reports whether the bundle can be renewed.
func (b Bundle) HasRefreshToken() bool {
	return b.RefreshToken != ""
}

// OAuth2 converts the bundle into an [oauth2.Token] for bearer-authenticated clients.
func (b Bundle) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  b.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: b.RefreshToken,
		Expiry:       b.ExpiresAt(0),
		ExpiresIn:    b.ExpiresIn,
	}
}

// IsExpired reports whether now >= obtained_at + (expires_in - skew).
func IsExpired(b Bundle, now time.Time, skew time.Duration) bool {
	return now.UnixMilli() >= b.ObtainedAt+b.ExpiresIn*1000-skew.Milliseconds()
}

// FromOAuth2 builds a bundle from a token endpoint response received at now.
//
// When the response omits a refresh token, fallback is kept (rotation is optional server-side).
func FromOAuth2(tok *oauth2.Token, now time.Time, fallback string) Bundle {
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(now).Round(time.Second) / time.Second)
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = fallback
	}

	return Bundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
		ObtainedAt:   now.UnixMilli(),
	}
}
