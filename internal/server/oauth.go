package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// SuccessPageGrace bounds how long a successful login waits for the browser to load the success page
// before it is reported.
const SuccessPageGrace = 3 * time.Second

// CompleteFunc finishes a login with the redirect's state and code.
type CompleteFunc func(ctx context.Context, state, code string) error

// ErrInvalidState is reported when the redirect's state does not belong to a pending attempt.
var ErrInvalidState = errors.New("invalid state parameter")

// CallbackHandler handles the PKCE redirect for one login attempt.
// Implements the Handler interface for registration with a Router.
type CallbackHandler struct {
	pending    func(state string) bool
	complete   CompleteFunc
	resultChan chan error
	once       sync.Once
	grace      time.Duration

	mu          sync.Mutex
	callbackHit bool
	succeeded   bool
}

// NewCallbackHandler creates a handler that accepts any state for which pending reports true.
//
// The listener can start before the attempt exists, so the state is checked when the redirect arrives.
func NewCallbackHandler(pending func(state string) bool, complete CompleteFunc) *CallbackHandler {
	return &CallbackHandler{
		pending:    pending,
		complete:   complete,
		resultChan: make(chan error, 1),
		grace:      SuccessPageGrace,
	}
}

// Routes returns the patterns this handler serves. "/{$}" matches the root only.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /callback", "GET /{$}"}
}

// ServeHTTP consumes the code on /callback and redirects to / so the code leaves the address bar. A
// successful login is reported once / has been served, or after [SuccessPageGrace].
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/callback":
		h.callback(w, r)
	case "/":
		h.mu.Lock()
		ok := h.succeeded
		h.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, successPage)
		h.Send(nil)
	default:
		http.NotFound(w, r)
	}
}

func (h *CallbackHandler) callback(w http.ResponseWriter, r *http.Request) {
	// Only handle callback once
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	state := q.Get("state")
	if !h.pending(state) {
		h.Send(ErrInvalidState)
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s - %s", q.Get("error"), q.Get("error_description"))
		h.Send(err)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if err := h.complete(context.WithoutCancel(r.Context()), state, code); err != nil {
		h.Send(fmt.Errorf("token exchange failed: %w", err))
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.succeeded = true
	h.mu.Unlock()

	http.Redirect(w, r, "/", http.StatusSeeOther)
	time.AfterFunc(h.grace, func() { h.Send(nil) })
}

// Send sends the login result through the channel (only once).
func (h *CallbackHandler) Send(err error) {
	h.once.Do(func() {
		h.resultChan <- err
		close(h.resultChan)
	})
}

// Result returns the result channel. It receives exactly one value (nil on success) and is then closed.
func (h *CallbackHandler) Result() <-chan error {
	return h.resultChan
}

const successPage = `
<!DOCTYPE html>
<html>
<head>
    <title>Logged in to Spotify</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #121212; }
        .container { text-align: center; background: #181818; padding: 2rem; border-radius: 8px; }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #b3b3b3; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>spx is connected</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
