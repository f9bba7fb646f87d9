package capture

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"lazythumb/internal/logging"
	"lazythumb/internal/visibility"
)

// ErrClosed is returned by Mount after Close.
var ErrClosed = errors.New("capture: manager closed")

// Reporter accepts intersection reports for a target.
type Reporter interface {
	Report(target string, e visibility.Entry) int
}

// Manager is the registry of mounted surfaces. Surface ids are UUIDs and
// double as visibility targets.
type Manager struct {
	deps Deps
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager. When deps.Visibility is nil a fresh
// visibility.Viewport is used. opts is the template for every session;
// its OnReady and Target are ignored.
func NewManager(deps Deps, opts Options) *Manager {
	if deps.Visibility == nil {
		deps.Visibility = visibility.NewViewport()
	}
	opts.OnReady = nil
	opts.Target = ""
	return &Manager{
		deps:     deps,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Mount starts a session for ref. onReady may be nil.
func (m *Manager) Mount(ref MediaReference, onReady func(payload string)) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	id := uuid.NewString()
	m.sessions[id] = nil // reserved until the session is mounted
	m.mu.Unlock()

	opts := m.opts
	opts.OnReady = onReady
	s := Mount(id, ref, m.deps, opts)

	m.mu.Lock()
	if m.closed {
		delete(m.sessions, id)
		m.mu.Unlock()
		s.Unmount()
		return nil, ErrClosed
	}
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok && s != nil
}

// Report forwards an intersection entry to the session's target. It returns
// false when the id is unknown.
func (m *Manager) Report(id string, e visibility.Entry) bool {
	if _, ok := m.Get(id); !ok {
		return false
	}
	if r, ok := m.deps.Visibility.(Reporter); ok {
		r.Report(id, e)
	}
	return true
}

// Generate re-requests generation for a session.
func (m *Manager) Generate(id string) bool {
	s, ok := m.Get(id)
	if ok {
		s.Generate()
	}
	return ok
}

// Unmount stops and forgets a session.
func (m *Manager) Unmount(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s != nil {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok || s == nil {
		return false
	}
	s.Unmount()
	return true
}

// Active returns the number of mounted sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s != nil {
			n++
		}
	}
	return n
}

// Close unmounts every session. Later Mounts fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s != nil {
			sessions = append(sessions, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Unmount()
	}
	if len(sessions) > 0 {
		logging.Info("Unmounted %d thumbnail sessions", len(sessions))
	}
}
