package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/desertthunder/spx/internal/shared"
)

type request struct {
	method string
	path   string
	query  string
	body   string
	auth   string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []request
	status   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, request{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		body:   string(body),
		auth:   r.Header.Get("Authorization"),
	})
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"status":%d,"message":"failure"}}`, status)
		return
	}

	switch r.URL.Path {
	case "/me/player/devices":
		fmt.Fprint(w, `{"devices":[{"id":"d1","name":"R1 Web Player","type":"Computer","is_active":true,"volume_percent":30}]}`)
	case "/me/player":
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"device":{"id":"d1","name":"R1 Web Player"},"progress_ms":1234,"is_playing":true,
				"item":{"id":"t","name":"Song","duration_ms":200000,"artists":[{"name":"A"}],
					"album":{"name":"Record","images":[{"url":"https://i.example/cover.jpg","width":640,"height":640}]}}}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeAPI) all() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.requests...)
}

type fakeSession struct {
	unlocked bool
	device   string
	resumes  int
	volume   float64
	reported []error
}

func (s *fakeSession) EnsureUnlocked(context.Context) bool { return s.unlocked }
func (s *fakeSession) DeviceID() string                    { return s.device }
func (s *fakeSession) Resume(context.Context) error        { s.resumes++; return nil }
func (s *fakeSession) ReportError(err error)               { s.reported = append(s.reported, err) }

func (s *fakeSession) SetVolume(_ context.Context, v float64) float64 {
	s.volume = v
	return v
}

func (s *fakeSession) AdjustVolume(ctx context.Context, d float64) float64 {
	return s.SetVolume(ctx, s.volume+d)
}

func newTestSurface(t *testing.T, api *fakeAPI, session Session) *Surface {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	token := func(context.Context) (string, error) { return "tok", nil }
	return NewWithToken(srv.Client(), srv.URL, token, session, shared.NewLogger(&bytes.Buffer{}))
}

func TestPlay(t *testing.T) {
	ctx := context.Background()

	t.Run("targets device and nudges", func(t *testing.T) {
		api := &fakeAPI{}
		sess := &fakeSession{unlocked: true, device: "d1"}
		s := newTestSurface(t, api, sess)

		if err := s.Play(ctx); err != nil {
			t.Fatalf("Play() error = %v", err)
		}

		reqs := api.all()
		if len(reqs) != 1 {
			t.Fatalf("expected one request, got %d", len(reqs))
		}
		r := reqs[0]
		if r.method != http.MethodPut || r.path != "/me/player/play" || r.query != "device_id=d1" {
			t.Errorf("unexpected request %+v", r)
		}
		if r.auth != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", r.auth)
		}
		if sess.resumes != 1 {
			t.Errorf("expected resume nudge, got %d", sess.resumes)
		}
	})

	t.Run("no device targets active device", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestSurface(t, api, &fakeSession{unlocked: true})

		if err := s.Play(ctx); err != nil {
			t.Fatalf("Play() error = %v", err)
		}
		if q := api.all()[0].query; q != "" {
			t.Errorf("expected no device_id, got %q", q)
		}
	})

	t.Run("locked gate aborts", func(t *testing.T) {
		api := &fakeAPI{}
		sess := &fakeSession{device: "d1"}
		s := newTestSurface(t, api, sess)

		if err := s.Play(ctx); !errors.Is(err, shared.ErrAudioLocked) {
			t.Fatalf("expected ErrAudioLocked, got %v", err)
		}
		if len(api.all()) != 0 || sess.resumes != 0 {
			t.Error("locked gate must not reach the control plane")
		}
	})

	t.Run("failure surfaces without nudge", func(t *testing.T) {
		api := &fakeAPI{status: http.StatusUnauthorized}
		sess := &fakeSession{unlocked: true, device: "d1"}
		s := newTestSurface(t, api, sess)

		err := s.Play(ctx)
		var cpe *ControlPlaneError
		if !errors.As(err, &cpe) {
			t.Fatalf("expected ControlPlaneError, got %v", err)
		}
		if cpe.Op != OpPlay || cpe.Status != http.StatusUnauthorized || !cpe.Unauthorized() {
			t.Errorf("unexpected error %+v", cpe)
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Error("ControlPlaneError should wrap ErrAPIRequest")
		}
		if len(api.all()) != 1 {
			t.Error("failed command must not be retried")
		}
		if sess.resumes != 0 || len(sess.reported) != 1 {
			t.Errorf("expected one surfaced error and no nudge, got resumes=%d reported=%v", sess.resumes, sess.reported)
		}
	})
}

func TestCommands(t *testing.T) {
	ctx := context.Background()

	tc := []struct {
		name   string
		run    func(*Surface) error
		method string
		path   string
		gated  bool
		nudged bool
	}{
		{name: "pause", run: func(s *Surface) error { return s.Pause(ctx) }, method: http.MethodPut, path: "/me/player/pause"},
		{name: "next", run: func(s *Surface) error { return s.Next(ctx) }, method: http.MethodPost, path: "/me/player/next", gated: true, nudged: true},
		{name: "previous", run: func(s *Surface) error { return s.Previous(ctx) }, method: http.MethodPost, path: "/me/player/previous", gated: true, nudged: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			sess := &fakeSession{unlocked: true}
			if err := tt.run(newTestSurface(t, api, sess)); err != nil {
				t.Fatalf("error = %v", err)
			}
			r := api.all()[0]
			if r.method != tt.method || r.path != tt.path {
				t.Errorf("unexpected request %s %s", r.method, r.path)
			}
			if (sess.resumes == 1) != tt.nudged {
				t.Errorf("nudge mismatch: resumes=%d", sess.resumes)
			}
		})

		t.Run(tt.name+" locked", func(t *testing.T) {
			api := &fakeAPI{}
			err := tt.run(newTestSurface(t, api, &fakeSession{unlocked: false}))
			if tt.gated {
				if !errors.Is(err, shared.ErrAudioLocked) || len(api.all()) != 0 {
					t.Errorf("expected gated command, err=%v requests=%d", err, len(api.all()))
				}
				return
			}
			if err != nil || len(api.all()) != 1 {
				t.Errorf("ungated command should proceed, err=%v", err)
			}
		})
	}
}

func TestToggle(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSurface(t, api, &fakeSession{unlocked: true})

	_ = s.Toggle(context.Background(), true)
	_ = s.Toggle(context.Background(), false)

	reqs := api.all()
	if reqs[0].path != "/me/player/play" || reqs[1].path != "/me/player/pause" {
		t.Errorf("unexpected toggle requests %v", reqs)
	}
}

func TestTransfer(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSurface(t, api, nil)

	if err := s.Transfer(context.Background(), ""); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}

	if err := s.Transfer(context.Background(), "d1"); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	r := api.all()[0]
	if r.method != http.MethodPut || r.path != "/me/player" {
		t.Fatalf("unexpected request %+v", r)
	}
	var body struct {
		DeviceIDs []string `json:"device_ids"`
		Play      bool     `json:"play"`
	}
	if err := json.Unmarshal([]byte(r.body), &body); err != nil {
		t.Fatalf("invalid body %q: %v", r.body, err)
	}
	if len(body.DeviceIDs) != 1 || body.DeviceIDs[0] != "d1" || !body.Play {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestVolume(t *testing.T) {
	ctx := context.Background()

	t.Run("session volume", func(t *testing.T) {
		api := &fakeAPI{}
		sess := &fakeSession{volume: 0.7}
		s := newTestSurface(t, api, sess)

		if v := s.AdjustVolume(ctx, 0.05); v < 0.749 || v > 0.751 {
			t.Errorf("AdjustVolume() = %v", v)
		}
		if v, _ := s.SetVolume(ctx, 3); v != 1 {
			t.Errorf("SetVolume() should clamp, got %v", v)
		}
		if len(api.all()) != 0 {
			t.Error("session volume is local")
		}
	})

	t.Run("control plane volume", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestSurface(t, api, nil)

		if _, err := s.SetVolume(ctx, 0.5); err != nil {
			t.Fatalf("SetVolume() error = %v", err)
		}
		r := api.all()[0]
		if r.path != "/me/player/volume" || r.query != "volume_percent=50" {
			t.Errorf("unexpected request %+v", r)
		}
	})
}

func TestStatusAndDevices(t *testing.T) {
	s := newTestSurface(t, &fakeAPI{}, nil)

	np, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if np.Track != "Song" || np.Position != 1234 || np.Duration != 200000 || !np.Playing || np.Device != "R1 Web Player" ||
		np.Album != "Record" || np.AlbumArt != "https://i.example/cover.jpg" {
		t.Errorf("unexpected status %+v", np)
	}

	devices, err := s.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "d1" || devices[0].Volume != 30 || !devices[0].Active {
		t.Errorf("unexpected devices %+v", devices)
	}
}
