// Package schedule keeps the credential bundle alive with a self-renewing refresh chain.
//
// A [Scheduler] is either idle or armed with exactly one timer. Each call to [Scheduler.Schedule] bumps a
// generation counter; a timer that fires for an older generation does nothing, so superseded chains can
// never resurrect a stale bundle.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/desertthunder/spx/internal/tokens"
)

// MinDelay is the floor applied to every computed delay.
const MinDelay = 5 * time.Second

// State of a [Scheduler].
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Refresher renews a bundle from its refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (tokens.Bundle, error)
}

// Saver persists a renewed bundle.
type Saver interface {
	Save(b tokens.Bundle) error
}

// Timer is the subset of [*time.Timer] the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Delay returns max([MinDelay], expiry - skew - now) for b.
func Delay(b tokens.Bundle, now time.Time) time.Duration {
	d := b.ExpiresAt(tokens.DefaultSkew).Sub(now)
	if d < MinDelay {
		return MinDelay
	}
	return d
}

// Scheduler owns the refresh chain for one session.
type Scheduler struct {
	refresher Refresher
	saver     Saver
	logger    *log.Logger
	now       func() time.Time
	afterFunc AfterFunc
	ctx       context.Context

	mu         sync.Mutex
	generation uint64
	state      State
	timer      Timer
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithAfterFunc replaces [time.AfterFunc], mainly for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithContext sets the context used for refresh calls.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// New creates an idle [Scheduler].
func New(refresher Refresher, saver Saver, logger *log.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	s := &Scheduler{
		refresher: refresher,
		saver:     saver,
		logger:    logger,
		now:       time.Now,
		afterFunc: realAfterFunc,
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Schedule supersedes any pending chain and arms one timer for b.
//
// onRenewed is called with each renewed bundle and may be nil.
func (s *Scheduler) Schedule(b tokens.Bundle, onRenewed func(tokens.Bundle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arm(b, onRenewed)
}

// arm must be called with mu held.
func (s *Scheduler) arm(b tokens.Bundle, onRenewed func(tokens.Bundle)) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	gen := s.generation
	delay := Delay(b, s.now())

	s.state = Armed
	s.timer = s.afterFunc(delay, func() { s.fire(gen, b, onRenewed) })
	s.logger.Debug("refresh scheduled", "in", delay.Round(time.Second), "generation", gen)
}

// Cancel stops the chain and goes idle.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.idle()
}

// idle must be called with mu held.
func (s *Scheduler) idle() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = Idle
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Scheduler) fire(gen uint64, b tokens.Bundle, onRenewed func(tokens.Bundle)) {
	if !s.current(gen) {
		return
	}

	if !b.HasRefreshToken() {
		s.mu.Lock()
		if gen == s.generation {
			s.idle()
		}
		s.mu.Unlock()
		s.logger.Info("bundle has no refresh token; refresh chain ended")
		return
	}

	nb, err := s.refresher.Refresh(s.ctx, b.RefreshToken)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.idle()
		s.mu.Unlock()
		s.logger.Error("scheduled token refresh failed", "error", err)
		return
	}
	// Save stays under mu: a Cancel either precedes the generation check or waits for the write.
	if err := s.saver.Save(nb); err != nil {
		s.logger.Warn("failed to persist refreshed bundle", "error", err)
	}
	s.mu.Unlock()

	if onRenewed != nil {
		onRenewed(nb)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.arm(nb, onRenewed)
	}
}
