package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own their routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Logging logs each request at debug level.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
		})
	}
}

// CallbackServer serves a [CallbackHandler] on the loopback address until the login completes.
type CallbackServer struct {
	handler *CallbackHandler
	srv     *http.Server
	errs    chan error
	logger  *log.Logger
	addr    string
}

// StartCallbackServer binds addr and starts serving h. The listener is bound before it returns, so the
// authorization page can be opened right away.
func StartCallbackServer(addr string, h *CallbackHandler, logger *log.Logger) (*CallbackServer, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	router := NewBasicRouter()
	router.Use(Logging(logger))
	router.Handler(h)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &CallbackServer{
		handler: h,
		srv:     &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		errs:    make(chan error, 1),
		logger:  logger,
		addr:    ln.Addr().String(),
	}

	go func() {
		logger.Info("starting callback listener", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()
	return s, nil
}

// Wait blocks until the callback reports, the server fails or ctx ends, then shuts the server down.
func (s *CallbackServer) Wait(ctx context.Context) error {
	var err error
	select {
	case err = <-s.handler.Result():
	case serr := <-s.errs:
		err = fmt.Errorf("server error: %w", serr)
	case <-ctx.Done():
		err = fmt.Errorf("%w: waiting for authorization: %w", shared.ErrTimeout, ctx.Err())
	}

	// let the success page response finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := s.srv.Shutdown(shutdownCtx); serr != nil {
		s.logger.Warn("error shutting down server", "error", serr)
	}
	return err
}

// Addr returns the bound address.
func (s *CallbackServer) Addr() string { return s.addr }

// Close shuts the listener down without waiting for a result.
func (s *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
