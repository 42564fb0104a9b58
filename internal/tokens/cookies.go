package tokens

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	spotifyCookie  = regexp.MustCompile(`(?i)sp(_|otify)`)
	cookieFragment = regexp.MustCompile(`;\s*`)
)

// CookieSnapshot is the best-effort record of identity-host session cookies.
type CookieSnapshot struct {
	UpdatedAt int64    `json:"updatedAt"`
	Cookies   []string `json:"cookies"`
}

// CookieSource yields a cookie header string ("a=1; b=2").
type CookieSource interface {
	CookieString() string
}

// JarSource reads cookies for a URL from an [http.CookieJar].
type JarSource struct {
	Jar http.CookieJar
	URL *url.URL
}

// CookieString joins the jar's cookies for the configured URL.
func (s JarSource) CookieString() string {
	if s.Jar == nil || s.URL == nil {
		return ""
	}
	var parts []string
	for _, c := range s.Jar.Cookies(s.URL) {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// FilterCookies keeps the fragments of a cookie string that look like Spotify session cookies.
//
// If nothing matches but the string is non-empty, the whole string is kept as a single fragment.
func FilterCookies(cookieString string) []string {
	var relevant []string
	for _, fragment := range cookieFragment.Split(cookieString, -1) {
		if fragment == "" {
			continue
		}
		if spotifyCookie.MatchString(fragment) {
			relevant = append(relevant, fragment)
		}
	}

	switch {
	case len(relevant) > 0:
		return relevant
	case cookieString != "":
		return []string{cookieString}
	default:
		return []string{}
	}
}
