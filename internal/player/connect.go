package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultPollInterval is how often a [Connect] player samples playback state.
const DefaultPollInterval = time.Second

// ConnectConfig holds the transport settings shared by every [Connect] player.
type ConnectConfig struct {
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// NewConnectFactory returns a [Factory] producing [Connect] players.
func NewConnectFactory(cfg ConnectConfig) Factory {
	return func(opts Options) (Player, error) {
		return NewConnect(cfg, opts)
	}
}

// tokenSource asks the session for the current token on every request.
type tokenSource struct {
	fn TokenFunc
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	at, err := s.fn(context.Background())
	if err != nil {
		return nil, err
	}
	if at == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: at, TokenType: "Bearer"}, nil
}

// NewBearerClient builds an HTTP client that stamps every request with the token returned by fn.
//
// The token is not cached, so a refreshed bundle takes effect on the next request.
func NewBearerClient(base *http.Client, fn TokenFunc) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	if base != nil && base.Transport != nil {
		transport = base.Transport
	}
	return &http.Client{Transport: &oauth2.Transport{Source: tokenSource{fn: fn}, Base: transport}}
}

// NewAPIClient builds a Web API client for baseURL (empty means the public API).
func NewAPIClient(base *http.Client, baseURL string, fn TokenFunc) *spotify.Client {
	var opts []spotify.ClientOption
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}
	return spotify.New(NewBearerClient(base, fn), opts...)
}

// APIStatus returns the HTTP status carried by a Web API error, or 0.
func APIStatus(err error) int {
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status
	}
	var sp *spotify.Error
	if errors.As(err, &sp) && sp != nil {
		return sp.Status
	}
	return 0
}

// observation is the previous poll result, used to attribute pauses.
type observation struct {
	seen         bool
	trackID      string
	paused       bool
	pausedByUser bool
	position     int
	duration     int
}

// Connect drives a Spotify Connect device through the Web API.
//
// The device is the one whose name matches [Options.Name]; failing that the active device, then the
// first listed one. Playback state is polled at a rate-limited cadence and translated into events. A pause
// seen mid-track on the same track that was previously playing is attributed to the user; a pause that
// arrives with a new track or on first sight is not.
type Connect struct {
	opts    Options
	client  *spotify.Client
	limiter *rate.Limiter
	logger  *log.Logger
	events  chan Event

	mu         sync.Mutex
	deviceID   spotify.ID
	ready      bool
	restricted bool
	last       observation
	lastStatus int
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool
}

var (
	_ Player    = (*Connect)(nil)
	_ Activator = (*Connect)(nil)
)

// NewConnect creates a disconnected [Connect] player.
func NewConnect(cfg ConnectConfig, opts Options) (*Connect, error) {
	if opts.Token == nil {
		return nil, fmt.Errorf("%w: token callback is required", shared.ErrMissingArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = shared.NewLogger(nil)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Connect{
		opts:    opts,
		client:  NewAPIClient(cfg.HTTPClient, cfg.BaseURL, opts.Token),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  shared.WithLogger(cfg.Logger, "player", opts.Name),
		events:  make(chan Event, 32),
	}, nil
}

// Events returns the event channel. It is closed by [Connect.Disconnect].
func (c *Connect) Events() <-chan Event {
	return c.events
}

// DeviceID returns the attached device, if any.
func (c *Connect) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.deviceID)
}

// emit delivers ev without blocking; events are dropped once the buffer is full or after Disconnect.
func (c *Connect) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("player event dropped", "event", fmt.Sprintf("%T", ev))
	}
}

// errorEvent maps an API failure to the matching event variant.
func errorEvent(err error) Event {
	switch APIStatus(err) {
	case http.StatusUnauthorized:
		return AuthenticationError{Message: "Spotify rejected the access token. Log in again."}
	case http.StatusForbidden:
		return AccountError{Message: "Spotify Premium is required for playback control."}
	default:
		return InitializationError{Message: err.Error()}
	}
}

func (c *Connect) pickDevice(devices []spotify.PlayerDevice) (spotify.PlayerDevice, bool) {
	for _, d := range devices {
		if d.Name == c.opts.Name {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Active {
			return d, true
		}
	}
	if len(devices) > 0 {
		return devices[0], true
	}
	return spotify.PlayerDevice{}, false
}

// Connect attaches to a device, emits [Ready] and starts polling.
func (c *Connect) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("player is disconnected")
	}
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		c.emit(errorEvent(err))
		return fmt.Errorf("%w: list devices: %w", shared.ErrAPIRequest, err)
	}

	device, ok := c.pickDevice(devices)
	if !ok {
		c.emit(InitializationError{Message: "No Spotify Connect device is available. Open Spotify on a device and try again."})
		return shared.ErrNoDevice
	}

	pollCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.deviceID = device.ID
	c.ready = true
	c.restricted = device.Restricted
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.logger.Info("attached to device", "device", device.Name, "id", device.ID)
	c.emit(Ready{DeviceID: string(device.ID)})

	go c.poll(pollCtx)
	return nil
}

// Disconnect stops polling and closes the event channel. It is safe to call more than once.
func (c *Connect) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.deviceID = ""
	c.ready = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	close(c.events)
}

func (c *Connect) poll(ctx context.Context) {
	defer close(c.done)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		c.tick(ctx)
	}
}

func (c *Connect) tick(ctx context.Context) {
	c.mu.Lock()
	id := c.deviceID
	c.mu.Unlock()

	state, err := c.client.PlayerState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.reportError(err)
		return
	}
	c.clearError()

	available := state.Device.ID == id
	if !available {
		available = c.listed(ctx, id)
	}
	c.setAvailability(id, available)

	if state.Device.ID != id {
		return
	}

	c.mu.Lock()
	c.restricted = state.Device.Restricted
	c.mu.Unlock()

	if ev, changed := c.observe(state); changed {
		c.emit(ev)
	}
}

func (c *Connect) reportError(err error) {
	status := APIStatus(err)
	c.mu.Lock()
	repeated := status == c.lastStatus
	c.lastStatus = status
	c.mu.Unlock()

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if !repeated {
			c.emit(errorEvent(err))
		}
		return
	}
	c.logger.Debug("poll failed", "error", err)
}

func (c *Connect) clearError() {
	c.mu.Lock()
	c.lastStatus = 0
	c.mu.Unlock()
}

func (c *Connect) listed(ctx context.Context, id spotify.ID) bool {
	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return false
	}
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (c *Connect) setAvailability(id spotify.ID, available bool) {
	c.mu.Lock()
	changed := c.ready != available
	c.ready = available
	c.mu.Unlock()

	if !changed {
		return
	}
	if available {
		c.emit(Ready{DeviceID: string(id)})
	} else {
		c.logger.Warn("device offline", "id", id)
		c.emit(NotReady{DeviceID: string(id)})
	}
}

// observe converts a poll into a [StateChanged] when anything visible moved.
func (c *Connect) observe(ps *spotify.PlayerState) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paused := !ps.Playing
	position := int(ps.Progress)
	st := State{
		Paused:   Ptr(paused),
		Position: Ptr(position),
	}

	var trackID string
	duration := c.last.duration
	if item := ps.Item; item != nil {
		trackID = string(item.ID)
		duration = int(item.Duration)
		names := make([]string, 0, len(item.Artists))
		for _, a := range item.Artists {
			names = append(names, a.Name)
		}
		st.Duration = Ptr(duration)
		st.TrackName = Ptr(item.Name)
		st.Artists = Ptr(strings.Join(names, ", "))
		if len(item.Album.Images) > 0 {
			st.AlbumArtURL = Ptr(item.Album.Images[0].URL)
		}
	}

	sameTrack := c.last.seen && c.last.trackID == trackID
	st.PausedByUser = paused && sameTrack && (c.last.pausedByUser || !c.last.paused)
	if ps.Device.Restricted {
		st.DisallowResuming = []string{"device_restricted"}
	}

	changed := !c.last.seen ||
		c.last.trackID != trackID ||
		c.last.paused != paused ||
		c.last.position != position ||
		c.last.duration != duration

	c.last = observation{
		seen:         true,
		trackID:      trackID,
		paused:       paused,
		pausedByUser: st.PausedByUser,
		position:     position,
		duration:     duration,
	}
	return StateChanged{State: st}, changed
}

func (c *Connect) device() (spotify.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deviceID == "" {
		return "", shared.ErrNoDevice
	}
	return c.deviceID, nil
}

// Resume starts playback on the attached device. A restricted device reports [AutoplayFailed].
func (c *Connect) Resume(ctx context.Context) error {
	id, err := c.device()
	if err != nil {
		return err
	}

	c.mu.Lock()
	restricted := c.restricted
	c.mu.Unlock()
	if restricted {
		c.emit(AutoplayFailed{})
		return shared.ErrAudioLocked
	}

	if err := c.client.PlayOpt(ctx, &spotify.PlayOptions{DeviceID: &id}); err != nil {
		return fmt.Errorf("%w: resume: %w", shared.ErrAPIRequest, err)
	}
	return nil
}

// SetVolume sets the device volume; v is clamped to 0..1.
func (c *Connect) SetVolume(ctx context.Context, v float64) error {
	id, err := c.device()
	if err != nil {
		return err
	}
	percent := int(math.Round(ClampVolume(v) * 100))
	if err := c.client.VolumeOpt(ctx, percent, &spotify.PlayOptions{DeviceID: &id}); err != nil {
		return fmt.Errorf("%w: set volume: %w", shared.ErrAPIRequest, err)
	}
	return nil
}

func (c *Connect) find(ctx context.Context) (spotify.PlayerDevice, error) {
	id, err := c.device()
	if err != nil {
		return spotify.PlayerDevice{}, err
	}
	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return spotify.PlayerDevice{}, fmt.Errorf("%w: list devices: %w", shared.ErrAPIRequest, err)
	}
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return spotify.PlayerDevice{}, shared.ErrNoDevice
}

// Volume reads the device volume as 0..1.
func (c *Connect) Volume(ctx context.Context) (float64, error) {
	d, err := c.find(ctx)
	if err != nil {
		return 0, err
	}
	return float64(int(d.Volume)) / 100, nil
}

// Activate checks that the device accepts commands.
func (c *Connect) Activate(ctx context.Context) error {
	d, err := c.find(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.restricted = d.Restricted
	c.mu.Unlock()

	if d.Restricted {
		return fmt.Errorf("%w: device %q is restricted", shared.ErrAudioLocked, d.Name)
	}
	return nil
}

// ClampVolume bounds v to 0..1, mapping NaN to [DefaultVolume].
func ClampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return DefaultVolume
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
