package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"plant-monitor/backend/pkg/utils"
)

const (
	// DefaultInterval is the time between two lookups for the same connection.
	DefaultInterval = 10 * time.Minute
	// DefaultLookupTimeout bounds a single lookup.
	DefaultLookupTimeout = 10 * time.Second
)

// ErrClosed is returned when a location arrives after the scheduler was closed.
var ErrClosed = errors.New("scheduler closed")

// Location is a client's geographic position in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate reports whether the coordinates are within range.
func (l Location) Validate() error {
	if !isFinite(l.Latitude) || !isFinite(l.Longitude) {
		return errors.New("coordinates must be finite numbers")
	}

	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", l.Latitude)
	}

	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", l.Longitude)
	}

	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Lookup resolves a location to the current ambient temperature in °C.
type Lookup interface {
	AmbientTemperature(ctx context.Context, loc Location) (float64, error)
}

// EmitFunc receives each lookup result. A nil value marks the reading unavailable.
// It is called with the scheduler lock held and must not block or call back into the Scheduler.
type EmitFunc func(value *float64)

// State is the scheduler's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// task is one location's polling loop.
type task struct {
	loc    Location
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns at most one polling task for a single connection.
//
// All methods are safe for concurrent use. Once Stop or Close returns, the
// cancelled task can no longer emit.
type Scheduler struct {
	l        *slog.Logger
	lookup   Lookup
	emit     EmitFunc
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	task   *task
	closed bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLookupTimeout bounds every lookup. Non-positive values are ignored.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScheduler creates an idle scheduler. A non-positive interval falls back to DefaultInterval.
func NewScheduler(l *slog.Logger, lookup Lookup, interval time.Duration, emit EmitFunc, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s := &Scheduler{
		l:        l.With(slog.String("component", "poller")),
		lookup:   lookup,
		emit:     emit,
		interval: interval,
		timeout:  DefaultLookupTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return StateClosed
	case s.task != nil:
		return StateActive
	default:
		return StateIdle
	}
}

// Location returns the location of the active task.
func (s *Scheduler) Location() (Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task == nil {
		return Location{}, false
	}

	return s.task.loc, true
}

// SetLocation cancels any running task and starts polling loc: one lookup
// right away, then one per interval. The new task waits for the cancelled one
// to exit before its first lookup, so lookups never overlap.
func (s *Scheduler) SetLocation(loc Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	var prev <-chan struct{}
	if s.task != nil {
		s.task.cancel()
		prev = s.task.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{loc: loc, cancel: cancel, done: make(chan struct{})}
	s.task = t

	go s.run(ctx, t, prev)

	s.l.Debug("polling started",
		slog.Float64("latitude", loc.Latitude),
		slog.Float64("longitude", loc.Longitude),
		slog.Bool("superseded", prev != nil),
		slog.Duration("interval", s.interval))

	return nil
}

// Stop cancels the running task, if any, and returns to idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	t := s.detach()
	s.mu.Unlock()

	if t != nil {
		<-t.done
	}
}

// Close cancels the running task, waits for it to exit and rejects further locations.
// It is safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	t := s.detach()
	s.mu.Unlock()

	if t != nil {
		<-t.done
	}
}

// detach cancels and forgets the current task. Callers hold s.mu.
func (s *Scheduler) detach() *task {
	t := s.task
	if t == nil {
		return nil
	}

	t.cancel()
	s.task = nil

	return t
}

func (s *Scheduler) run(ctx context.Context, t *task, prev <-chan struct{}) {
	defer close(t.done)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	s.cycle(ctx, t)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx, t)
		}
	}
}

// cycle performs one fetch and emits its outcome.
func (s *Scheduler) cycle(ctx context.Context, t *task) {
	if ctx.Err() != nil {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	temp, err := s.safeLookup(lookupCtx, t.loc)
	if err != nil {
		if ctx.Err() != nil {
			// cancelled mid-flight; the result belongs to nobody
			return
		}

		s.l.Warn("ambient temperature lookup failed",
			slog.Float64("latitude", t.loc.Latitude),
			slog.Float64("longitude", t.loc.Longitude),
			slog.Duration("elapsed", time.Since(start)),
			utils.ErrAttr(err))

		s.deliver(t, nil)

		return
	}

	s.deliver(t, utils.Ptr(temp))
}

// deliver emits value only if t is still the current task.
func (s *Scheduler) deliver(t *task, value *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != t {
		return
	}

	s.emit(value)
}

// safeLookup calls the lookup with panic recovery.
func (s *Scheduler) safeLookup(ctx context.Context, loc Location) (temp float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := utils.NewUUID()

			s.l.Error("lookup panic",
				slog.String("correlation_id", correlationID),
				slog.String("panic", fmt.Sprintf("%v", r)),
				slog.String("stack", string(debug.Stack())))

			err = fmt.Errorf("lookup panic (correlation_id: %s)", correlationID)
		}
	}()

	return s.lookup.AmbientTemperature(ctx, loc)
}
