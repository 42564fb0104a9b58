package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/spx/internal/app"
	"github.com/desertthunder/spx/internal/auth"
	"github.com/desertthunder/spx/internal/control"
	"github.com/desertthunder/spx/internal/player"
	"github.com/desertthunder/spx/internal/repositories"
	"github.com/desertthunder/spx/internal/session"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/desertthunder/spx/internal/tokens"
)

// stackOpts selects how the object graph is assembled for a command.
type stackOpts struct {
	// Interactive attaches the control surface to the playback session, gating commands on the audio
	// unlock and enabling auto-transfer. One-shot commands drive whichever device is active.
	Interactive bool
	// NoBrowser leaves navigation to the user.
	NoBrowser bool
}

// stack is the wired application for one command invocation.
type stack struct {
	ctrl   *app.Controller
	client *http.Client
	db     *sql.DB
}

// Close stops background work and releases the database.
func (s *stack) Close() {
	s.ctrl.Close()
	if s.db != nil {
		s.db.Close()
	}
}

// newClient copies the runner's client and gives it a cookie jar for the accounts host.
func (r *Runner) newClient() *http.Client {
	client := &http.Client{
		Transport: r.httpClient.Transport,
		Jar:       r.httpClient.Jar,
		Timeout:   30 * time.Second,
	}
	if client.Jar == nil {
		if jar, err := cookiejar.New(nil); err == nil {
			client.Jar = jar
		}
	}
	return client
}

// openBackend returns the storage backend named by the config and the database it opened, if any.
func (r *Runner) openBackend() (tokens.Backend, *sql.DB, error) {
	switch r.config.Storage.Backend {
	case "", "sqlite":
		db, err := repositories.Open(r.config.Database.Path, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return repositories.NewRecordRepository(db), db, nil
	case "file":
		return tokens.NewFileBackend(shared.ExpandHome(r.config.Storage.Dir)), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown storage backend %q", shared.ErrInvalidConfig, r.config.Storage.Backend)
	}
}

func (r *Runner) callbackAddr() string {
	return net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
}

// build assembles the controller: flow, store, scheduler, session and control surface.
func (r *Runner) build(opts stackOpts) (*stack, error) {
	cfg := r.config
	client := r.newClient()

	backend, db, err := r.openBackend()
	if err != nil {
		return nil, err
	}

	var cookies tokens.CookieSource
	if u, err := url.Parse(cfg.Credentials.Spotify.AuthURL); err == nil && client.Jar != nil {
		cookies = tokens.JarSource{Jar: client.Jar, URL: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}}
	}
	store := tokens.NewRecordStore(backend, cookies, r.logger)

	var navigator auth.Navigator
	if !opts.NoBrowser {
		navigator = auth.NavigatorFunc(shared.OpenBrowser)
	}
	flow := auth.NewFlow(cfg.Credentials.Spotify, navigator, r.logger, auth.WithHTTPClient(client))

	factory := player.NewConnectFactory(player.ConnectConfig{
		BaseURL:      cfg.Credentials.Spotify.APIBaseURL,
		PollInterval: time.Duration(cfg.Player.PollIntervalMS) * time.Millisecond,
		HTTPClient:   client,
		Logger:       r.logger,
	})
	manager := session.New(session.Config{
		Name:         cfg.Player.Name,
		Volume:       cfg.Player.Volume,
		Platform:     shared.DetectPlatform(cfg.Player.Platform),
		Factory:      factory,
		Logger:       r.logger,
		AutoTransfer: opts.Interactive,
	})

	// The surface authenticates through the controller, which does not exist yet.
	var ctrl *app.Controller
	token := func(ctx context.Context) (string, error) { return ctrl.Token(ctx) }

	var target control.Session
	if opts.Interactive {
		target = manager
	}
	surface := control.NewWithToken(client, cfg.Credentials.Spotify.APIBaseURL, token, target, r.logger)
	manager.SetControl(surface)

	ctrl = app.New(app.Options{
		Auth:         flow,
		Store:        store,
		Manager:      manager,
		Surface:      surface,
		Logger:       r.logger,
		CallbackAddr: r.callbackAddr(),
	})

	return &stack{ctrl: ctrl, client: client, db: db}, nil
}
