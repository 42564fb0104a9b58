// Package control issues transport commands to the Spotify Web API player endpoints.
//
// Commands that produce sound pass the audio unlock gate first. A failed command is surfaced once and
// never retried; local playback state is left for the next state notification to correct.
package control

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/player"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/zmb3/spotify/v2"
)

// Operation names carried by [ControlPlaneError].
const (
	OpPlay     = "play"
	OpPause    = "pause"
	OpNext     = "next"
	OpPrevious = "previous"
	OpTransfer = "transfer"
	OpVolume   = "volume"
	OpStatus   = "status"
)

// ControlPlaneError is a failed Web API command. Status is 0 for transport failures.
type ControlPlaneError struct {
	Op     string
	Status int
	Err    error
}

func (e *ControlPlaneError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: Spotify returned HTTP %d", e.Op, e.Status)
}

func (e *ControlPlaneError) Unwrap() []error { return []error{shared.ErrAPIRequest, e.Err} }

// Unauthorized reports whether the access token was rejected.
func (e *ControlPlaneError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Session is the playback session the surface acts on.
type Session interface {
	EnsureUnlocked(ctx context.Context) bool
	DeviceID() string
	Resume(ctx context.Context) error
	SetVolume(ctx context.Context, v float64) float64
	AdjustVolume(ctx context.Context, delta float64) float64
	ReportError(err error)
}

// Surface issues play, pause, skip, volume and transfer commands.
type Surface struct {
	client  *spotify.Client
	session Session
	logger  *log.Logger
}

// New creates a [Surface]. session may be nil, in which case commands are not gated and no resume nudge
// is sent.
func New(client *spotify.Client, session Session, logger *log.Logger) *Surface {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Surface{client: client, session: session, logger: shared.WithLogger(logger, "component", "control")}
}

// NewWithToken creates a [Surface] whose requests carry the token returned by token.
func NewWithToken(httpClient *http.Client, baseURL string, token player.TokenFunc, session Session, logger *log.Logger) *Surface {
	return New(player.NewAPIClient(httpClient, baseURL, token), session, logger)
}

func (s *Surface) fail(op string, err error) error {
	cpe := &ControlPlaneError{Op: op, Status: player.APIStatus(err), Err: err}
	s.logger.Error("control-plane command failed", "op", op, "status", cpe.Status, "error", err)
	if s.session != nil {
		s.session.ReportError(cpe)
	}
	return cpe
}

func (s *Surface) gate(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	if !s.session.EnsureUnlocked(ctx) {
		return shared.ErrAudioLocked
	}
	return nil
}

func (s *Surface) nudge(ctx context.Context) {
	if s.session == nil {
		return
	}
	if err := s.session.Resume(ctx); err != nil {
		s.logger.Debug("resume nudge failed", "error", err)
	}
}

// Play resumes playback, targeting the session's device when one is attached.
func (s *Surface) Play(ctx context.Context) error {
	if err := s.gate(ctx); err != nil {
		return err
	}

	opts := &spotify.PlayOptions{}
	if s.session != nil {
		if id := s.session.DeviceID(); id != "" {
			device := spotify.ID(id)
			opts.DeviceID = &device
		}
	}
	if err := s.client.PlayOpt(ctx, opts); err != nil {
		return s.fail(OpPlay, err)
	}
	s.nudge(ctx)
	return nil
}

// Pause pauses the active device. It is not gated.
func (s *Surface) Pause(ctx context.Context) error {
	if err := s.client.Pause(ctx); err != nil {
		return s.fail(OpPause, err)
	}
	return nil
}

// Toggle plays when paused and pauses otherwise.
func (s *Surface) Toggle(ctx context.Context, paused bool) error {
	if paused {
		return s.Play(ctx)
	}
	return s.Pause(ctx)
}

// Next skips to the next track.
func (s *Surface) Next(ctx context.Context) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	if err := s.client.Next(ctx); err != nil {
		return s.fail(OpNext, err)
	}
	s.nudge(ctx)
	return nil
}

// Previous skips to the previous track.
func (s *Surface) Previous(ctx context.Context) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	if err := s.client.Previous(ctx); err != nil {
		return s.fail(OpPrevious, err)
	}
	s.nudge(ctx)
	return nil
}

// Transfer makes deviceID the active device and starts playback there.
func (s *Surface) Transfer(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}
	if err := s.client.TransferPlayback(ctx, spotify.ID(deviceID), true); err != nil {
		return s.fail(OpTransfer, err)
	}
	return nil
}

// SetVolume sets the volume (0..1). With a session the local player is used; without one the
// control plane sets the active device's volume.
func (s *Surface) SetVolume(ctx context.Context, v float64) (float64, error) {
	v = player.ClampVolume(v)
	if s.session != nil {
		return s.session.SetVolume(ctx, v), nil
	}
	if err := s.client.Volume(ctx, int(math.Round(v*100))); err != nil {
		return 0, s.fail(OpVolume, err)
	}
	return v, nil
}

// AdjustVolume moves the session volume by delta.
func (s *Surface) AdjustVolume(ctx context.Context, delta float64) float64 {
	if s.session == nil {
		return 0
	}
	return s.session.AdjustVolume(ctx, delta)
}

// Device is a Connect device as listed by the Web API.
type Device struct {
	ID         string
	Name       string
	Type       string
	Active     bool
	Restricted bool
	Volume     int
}

// Devices lists the user's Connect devices.
func (s *Surface) Devices(ctx context.Context) ([]Device, error) {
	devices, err := s.client.PlayerDevices(ctx)
	if err != nil {
		return nil, s.fail(OpStatus, err)
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device{
			ID:         string(d.ID),
			Name:       d.Name,
			Type:       d.Type,
			Active:     d.Active,
			Restricted: d.Restricted,
			Volume:     int(d.Volume),
		})
	}
	return out, nil
}

// NowPlaying is the control plane's view of current playback.
type NowPlaying struct {
	Device   string
	Playing  bool
	Position int
	Duration int
	Track    string
	Album    string
	AlbumArt string
	Artists  []string
}

// Status reads the current playback. A zero value means nothing is playing.
func (s *Surface) Status(ctx context.Context) (NowPlaying, error) {
	st, err := s.client.PlayerState(ctx)
	if err != nil {
		return NowPlaying{}, s.fail(OpStatus, err)
	}
	np := NowPlaying{
		Device:   st.Device.Name,
		Playing:  st.Playing,
		Position: int(st.Progress),
	}
	if st.Item != nil {
		np.Track = st.Item.Name
		np.Duration = int(st.Item.Duration)
		np.Album = st.Item.Album.Name
		if len(st.Item.Album.Images) > 0 {
			np.AlbumArt = st.Item.Album.Images[0].URL
		}
		for _, a := range st.Item.Artists {
			np.Artists = append(np.Artists, a.Name)
		}
	}
	return np, nil
}
