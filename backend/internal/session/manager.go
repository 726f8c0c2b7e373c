// Package session ties each client connection to its own polling scheduler
// and to the broadcaster's live set.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"plant-monitor/backend/internal/hub"
	"plant-monitor/backend/internal/poller"
	"plant-monitor/backend/pkg/utils"
)

const (
	// EventLocation is the inbound event carrying a client's position.
	EventLocation = "location"
	// EventAmbientTemperature is the per-connection outbound event.
	EventAmbientTemperature = "ambient_temperature"
)

var (
	ErrUnknownSession   = errors.New("unknown session")
	ErrDuplicateSession = errors.New("session already connected")
	ErrInvalidLocation  = errors.New("invalid location")
	ErrShuttingDown     = errors.New("session manager is shutting down")
)

// Session is one connected client.
type Session struct {
	conn        hub.Conn
	scheduler   *poller.Scheduler
	connectedAt time.Time
}

// ID returns the connection ID.
func (s *Session) ID() string { return s.conn.ID() }

// ConnectedAt returns when the session was created.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Location returns the location currently being polled, if any.
func (s *Session) Location() (poller.Location, bool) { return s.scheduler.Location() }

// Manager owns every live session.
type Manager struct {
	l           *slog.Logger
	broadcaster *hub.Broadcaster
	lookup      poller.Lookup
	interval    time.Duration
	opts        []poller.Option

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager whose sessions poll lookup every interval.
func NewManager(
	l *slog.Logger,
	broadcaster *hub.Broadcaster,
	lookup poller.Lookup,
	interval time.Duration,
	opts ...poller.Option,
) *Manager {
	return &Manager{
		l:           l.With(slog.String("component", "session")),
		broadcaster: broadcaster,
		lookup:      lookup,
		interval:    interval,
		opts:        opts,
		sessions:    make(map[string]*Session),
	}
}

// Connect creates an idle session for c and adds it to the live set.
func (m *Manager) Connect(c hub.Conn) (*Session, error) {
	id := c.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShuttingDown
	}

	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}

	emit := func(value *float64) {
		m.broadcaster.EmitTo(id, EventAmbientTemperature, value)
	}

	s := &Session{
		conn:        c,
		scheduler:   poller.NewScheduler(m.l.With(slog.String("conn_id", id)), m.lookup, m.interval, emit, m.opts...),
		connectedAt: time.Now(),
	}

	m.sessions[id] = s
	m.broadcaster.Register(c)

	m.l.Info("client connected", slog.String("conn_id", id), slog.Int("sessions", len(m.sessions)))

	return s, nil
}

// HandleLocation starts (or restarts) ambient temperature polling for the session.
func (m *Manager) HandleLocation(id string, loc poller.Location) error {
	if err := loc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	if err := s.scheduler.SetLocation(loc); err != nil {
		if errors.Is(err, poller.ErrClosed) {
			// lost the race against Disconnect
			return fmt.Errorf("%w: %s", ErrUnknownSession, id)
		}
		return fmt.Errorf("failed to set location: %w", err)
	}

	return nil
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]

	return s, ok
}

// Disconnect cancels the session's polling and removes it from the live set.
// Only the first call for an id has any effect.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}

	m.teardown(s)

	m.l.Info("client disconnected",
		slog.String("conn_id", id),
		slog.Duration("duration", time.Since(s.connectedAt)),
		slog.Int("sessions", remaining))
}

// teardown stops polling before leaving the live set so no emission targets a
// connection the broadcaster has already forgotten.
func (m *Manager) teardown(s *Session) {
	s.scheduler.Close()
	m.broadcaster.Unregister(s.ID())
}

// Shutdown disconnects every session and closes their connections.
// Connect fails afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()

			m.teardown(s)

			if c, ok := s.conn.(io.Closer); ok {
				utils.LogOnError(m.l, c.Close, "failed to close connection")
			}
		}()
	}

	wg.Wait()

	m.l.Info("all sessions closed", slog.Int("count", len(sessions)))
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}
