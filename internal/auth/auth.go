// Package auth drives the Spotify PKCE authorization-code flow.
//
// A [Flow] owns an in-memory attempt registry keyed by the OAuth state: [Flow.BeginAuth] stores the
// verifier for one attempt and [Flow.ExchangeCode] consumes it. Client identity is validated before
// anything leaves the process, so a placeholder client id never reaches the browser.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/pkce"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/desertthunder/spx/internal/tokens"
	"golang.org/x/oauth2"
)

var placeholderPattern = regexp.MustCompile(`(?i)your_spotify_client_id`)

var placeholderIDs = map[string]struct{}{
	"PLACEHOLDER_CLIENT_ID":       {},
	"YOUR_SPOTIFY_CLIENT_ID":      {},
	"YOUR_SPOTIFY_CLIENT_ID_HERE": {},
	"undefined":                   {},
}

// IsPlaceholderClientID reports whether id is empty or one of the template values shipped in config files.
func IsPlaceholderClientID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return true
	}
	if _, ok := placeholderIDs[id]; ok {
		return true
	}
	return placeholderPattern.MatchString(id)
}

// Navigator sends the user agent to the authorization URL.
type Navigator interface {
	Navigate(url string) error
}

// NavigatorFunc adapts a function (e.g. [shared.OpenBrowser]) to [Navigator].
type NavigatorFunc func(url string) error

func (f NavigatorFunc) Navigate(url string) error { return f(url) }

// Attempt is one outstanding authorization request.
type Attempt struct {
	State string
	URL   string
}

// Flow performs PKCE authorization and refresh against the accounts service.
type Flow struct {
	config    *oauth2.Config
	navigator Navigator
	client    *http.Client
	logger    *log.Logger
	now       func() time.Time

	mu       sync.Mutex
	attempts map[string]string // state -> verifier
}

// Option configures a [Flow].
type Option func(*Flow)

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) { f.client = c }
}

// WithClock overrides the time source used for obtained_at.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a [Flow] for the configured Spotify app. PKCE clients are public, so the client id travels in
// the request body and no secret is sent.
func NewFlow(cfg shared.SpotifyConfig, navigator Navigator, logger *log.Logger, opts ...Option) *Flow {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	f := &Flow{
		config: &oauth2.Config{
			ClientID:    strings.TrimSpace(cfg.ClientID),
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		navigator: navigator,
		client:    http.DefaultClient,
		logger:    logger,
		now:       time.Now,
		attempts:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ClientID returns the configured client id.
func (f *Flow) ClientID() string {
	return f.config.ClientID
}

func (f *Flow) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.client)
}

// BeginAuth registers a new attempt and navigates to the authorization URL.
//
// A missing or placeholder client id yields a [*ConfigurationError] and no navigation happens.
func (f *Flow) BeginAuth(ctx context.Context) (*Attempt, error) {
	if IsPlaceholderClientID(f.config.ClientID) {
		return nil, &ConfigurationError{Reason: "Spotify client id is not configured. Set credentials.spotify.client_id in config.toml"}
	}

	pair, err := pkce.NewPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	state := shared.GenerateState()
	url := f.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
		oauth2.SetAuthURLParam("show_dialog", "true"),
	)

	f.mu.Lock()
	f.attempts[state] = pair.Verifier
	f.mu.Unlock()

	attempt := &Attempt{State: state, URL: url}
	if f.navigator == nil {
		return attempt, nil
	}

	if err := f.navigator.Navigate(url); err != nil {
		f.logger.Warn("could not open browser", "error", err)
		return attempt, fmt.Errorf("failed to open authorization page: %w", err)
	}
	return attempt, nil
}

// Pending reports whether state belongs to an unconsumed attempt.
func (f *Flow) Pending(state string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.attempts[state]
	return ok
}

func (f *Flow) consume(state string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	verifier := f.attempts[state]
	delete(f.attempts, state)
	return verifier
}

// ExchangeCode trades an authorization code for a bundle, consuming the attempt's verifier.
//
// An unknown state sends an empty verifier and lets the server reject it.
func (f *Flow) ExchangeCode(ctx context.Context, state, code string) (tokens.Bundle, error) {
	verifier := f.consume(state)

	tok, err := f.config.Exchange(f.ctx(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return tokens.Bundle{}, &ExchangeError{Status: statusOf(err), Err: err}
	}

	f.logger.Debug("authorization code exchanged", "expires_in", tok.ExpiresIn)
	return tokens.FromOAuth2(tok, f.now(), ""), nil
}

// Refresh exchanges a refresh token for a new bundle. When the response omits a refresh token the prior one is kept.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (tokens.Bundle, error) {
	if refreshToken == "" {
		return tokens.Bundle{}, &RefreshError{Err: shared.ErrNoRefreshToken}
	}

	src := f.config.TokenSource(f.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return tokens.Bundle{}, &RefreshError{Status: statusOf(err), Err: err}
	}

	f.logger.Debug("access token refreshed", "expires_in", tok.ExpiresIn)
	return tokens.FromOAuth2(tok, f.now(), refreshToken), nil
}

// statusOf extracts the HTTP status of a token endpoint failure, or 0 for transport errors.
func statusOf(err error) int {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}
