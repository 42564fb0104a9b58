// package testing contains shared testing utilities and fakes of the playback layer
package testing

import (
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
)

// ErrInjected is returned by every failure these helpers inject.
var ErrInjected = errors.New("injected failure")

// FailingWriter passes the first After writes through to Target (or discards them) and fails the rest.
type FailingWriter struct {
	After  int
	Target io.Writer
	writes int
}

func (w *FailingWriter) Write(p []byte) (int, error) {
	if w.writes >= w.After {
		return 0, ErrInjected
	}
	w.writes++
	if w.Target == nil {
		return len(p), nil
	}
	return w.Target.Write(p)
}

// RoundTripFunc adapts a function to [http.RoundTripper].
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// StaticTransport answers every request with resp and err.
func StaticTransport(resp *http.Response, err error) http.RoundTripper {
	return RoundTripFunc(func(*http.Request) (*http.Response, error) { return resp, err })
}

// BrokenBody is a response body whose reads fail.
type BrokenBody struct{}

func (BrokenBody) Read([]byte) (int, error) { return 0, ErrInjected }
func (BrokenBody) Close() error             { return nil }

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		t.Errorf("expected file at %s (err=%v)", path, err)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Errorf("expected directory at %s (err=%v)", path, err)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(content)
}
