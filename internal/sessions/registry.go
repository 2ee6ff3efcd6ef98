// Package sessions tracks live protocol sessions for the HTTP transport.
// Each session owns an inbound channel drained by a dedicated run goroutine;
// the registry enforces the session cap and reaps idle sessions.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyberpapiii/imessage-max-sub000/internal/logctx"
)

// ErrCapacityExceeded is returned by Create when the session cap is reached.
// Callers reject the new session rather than queueing it.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

// RunFunc drains a session's inbound channel until its context is cancelled.
// A non-nil error or a panic terminates the session.
type RunFunc func(ctx context.Context, sessionID string, inbound <-chan []byte) error

// Session is one live session's registry record.
type Session struct {
	id        string
	inbound   chan []byte
	createdAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	lastActive time.Time
}

// ID returns the session's public identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastActive = t
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithMaxSessions caps concurrent sessions.
func WithMaxSessions(n int) Option {
	return func(r *Registry) { r.max = n }
}

// WithIdleTimeout sets how long a session may go untouched before the
// sweeper terminates it.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithSweepInterval sets how often the sweeper scans for idle sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) { r.sweepInterval = d }
}

// WithTerminateHook registers a callback invoked synchronously whenever a
// session is terminated, whatever the cause.
func WithTerminateHook(fn func(sessionID string)) Option {
	return func(r *Registry) { r.onTerminate = fn }
}

// Registry owns the live session set.
type Registry struct {
	log           *slog.Logger
	max           int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	onTerminate   func(string)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a Registry. Defaults: 32 sessions, 1h idle timeout,
// 5m sweep interval.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		log:           slog.Default(),
		max:           32,
		idleTimeout:   time.Hour,
		sweepInterval: 5 * time.Minute,
		sessions:      make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new session and starts its run goroutine. The base
// context should be the server's lifetime context, not a request context.
func (r *Registry) Create(base context.Context, run RunFunc) (*Session, error) {
	now := time.Now()
	s := &Session{
		id:         uuid.NewString(),
		inbound:    make(chan []byte, 16),
		createdAt:  now,
		lastActive: now,
		done:       make(chan struct{}),
	}

	// The cancel func must be in place before the session is visible in the
	// map; a Terminate racing Create would otherwise find it nil.
	ctx, cancel := context.WithCancel(base)
	s.cancel = cancel
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: s.id})

	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %d active", ErrCapacityExceeded, r.max)
	}
	r.sessions[s.id] = s
	r.mu.Unlock()

	go r.runSession(ctx, s, run)

	r.log.InfoContext(ctx, "sessions.create")
	return s, nil
}

// runSession hosts the session's run function, converting panics and errors
// into termination so a misbehaving session cannot take the server down.
func (r *Registry) runSession(ctx context.Context, s *Session, run RunFunc) {
	defer close(s.done)
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "sessions.run.panic", slog.Any("panic", rec))
		}
		r.Terminate(s.id)
	}()

	if err := run(ctx, s.id, s.inbound); err != nil && !errors.Is(err, context.Canceled) {
		r.log.ErrorContext(ctx, "sessions.run.fail", slog.String("err", err.Error()))
	}
}

// Validate reports whether the session id refers to a live session.
func (r *Registry) Validate(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	r.mu.Unlock()
	return ok
}

// Touch refreshes the session's idle clock.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(time.Now())
	}
}

// Route delivers an inbound payload to the session's engine. The return
// value is authoritative: false means the session terminated, even if a
// Validate call just succeeded.
func (r *Registry) Route(ctx context.Context, id string, payload []byte) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.touch(time.Now())

	select {
	case s.inbound <- payload:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Terminate tears down a session. It is idempotent and safe to call from
// the session's own run goroutine. The terminate hook runs synchronously so
// transport-side state (open streams, pending requests) is cleaned up before
// Terminate returns.
func (r *Registry) Terminate(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	s.cancel()
	if r.onTerminate != nil {
		r.onTerminate(id)
	}
	r.log.Info("sessions.terminate", slog.String("sess.id", id))
	return true
}

// Len reports the live session count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run drives the idle sweeper until ctx is cancelled. Idle sessions go
// through the same Terminate path as explicit deletes.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var idle []string
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) >= r.idleTimeout {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.log.Info("sessions.sweep.idle", slog.String("sess.id", id))
		r.Terminate(id)
	}
}
