package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/shared"
)

const (
	// BundleKey is the fixed storage key of the serialized [Bundle].
	BundleKey = "sp_token_bundle_v1"
	// CookieKey is the fixed storage key of the [CookieSnapshot].
	CookieKey = "spotify_login_cookie"
)

// Store persists the single live credential bundle.
type Store interface {
	Save(b Bundle) error
	Load() (Bundle, bool)
	Clear() error
}

// Backend is a keyed byte store. Read returns [shared.ErrRecordNotFound] for missing keys.
type Backend interface {
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	Remove(key string) error
}

// RecordStore implements [Store] on top of a [Backend].
type RecordStore struct {
	backend Backend
	cookies CookieSource
	logger  *log.Logger
	now     func() time.Time
}

var _ Store = (*RecordStore)(nil)

// NewRecordStore creates a [RecordStore]. cookies may be nil, in which case snapshots are empty.
func NewRecordStore(backend Backend, cookies CookieSource, logger *log.Logger) *RecordStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RecordStore{backend: backend, cookies: cookies, logger: logger, now: time.Now}
}

// Save serializes and persists the bundle, then refreshes the cookie snapshot.
//
// The snapshot is best-effort: its failure is logged and never returned.
func (s *RecordStore) Save(b Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle: %w", err)
	}
	if err := s.backend.Write(BundleKey, data); err != nil {
		return fmt.Errorf("failed to persist bundle: %w", err)
	}
	s.PersistCookies()
	return nil
}

// Load returns the persisted bundle. Missing, unreadable or malformed data is reported as absent.
func (s *RecordStore) Load() (Bundle, bool) {
	data, err := s.backend.Read(BundleKey)
	if err != nil {
		if !errors.Is(err, shared.ErrRecordNotFound) {
			s.logger.Warn("failed to read token bundle", "error", err)
		}
		return Bundle{}, false
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		s.logger.Warn("discarding malformed token bundle", "error", err)
		return Bundle{}, false
	}
	if b.AccessToken == "" {
		return Bundle{}, false
	}
	return b, true
}

// Clear removes the bundle and the cookie snapshot.
func (s *RecordStore) Clear() error {
	var errs []error
	if err := s.backend.Remove(BundleKey); err != nil {
		errs = append(errs, err)
	}
	if err := s.backend.Remove(CookieKey); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PersistCookies writes a fresh [CookieSnapshot]. Failures are logged only.
func (s *RecordStore) PersistCookies() {
	cookieString := ""
	if s.cookies != nil {
		cookieString = s.cookies.CookieString()
	}

	snapshot := CookieSnapshot{
		UpdatedAt: s.now().UnixMilli(),
		Cookies:   FilterCookies(cookieString),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn("failed to marshal cookie snapshot", "error", err)
		return
	}
	if err := s.backend.Write(CookieKey, data); err != nil {
		s.logger.Warn("failed to persist Spotify login cookie", "error", err)
	}
}

// Cookies returns the persisted snapshot, if any.
func (s *RecordStore) Cookies() (CookieSnapshot, bool) {
	data, err := s.backend.Read(CookieKey)
	if err != nil {
		return CookieSnapshot{}, false
	}
	var snapshot CookieSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return CookieSnapshot{}, false
	}
	return snapshot, true
}

// FileBackend stores each key as <dir>/<key>.json with owner-only permissions.
type FileBackend struct {
	dir string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a [FileBackend] rooted at dir ("~/" is expanded).
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: shared.ExpandHome(dir)}
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Read returns the stored bytes or [shared.ErrRecordNotFound].
func (f *FileBackend) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRecordNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Write stores value under key. The file is replaced by rename so readers never see a partial value.
func (f *FileBackend) Write(key string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (f *FileBackend) Remove(key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
