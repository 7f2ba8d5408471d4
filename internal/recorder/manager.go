package recorder

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/lxb/internal/clock"
)

// Manager owns at most one active Session and is the Recorder the
// emitters call into. It
// implements emit.Recorder directly: Offer swallows write errors (logged,
// not propagated) so a filesystem hiccup never blocks an emitter tick.
type Manager struct {
	clk    clock.Clock
	root   string
	logger *logrus.Logger

	mu       sync.Mutex
	active   *Session
	lastStop *Manifest
}

// NewManager creates a Manager rooted at dataRoot.
func NewManager(clk clock.Clock, dataRoot string, logger *logrus.Logger) *Manager {
	return &Manager{clk: clk, root: dataRoot, logger: logger}
}

// StartRecording begins a new session. sessionName may be empty (a
// clock-derived timestamp is used). It fails if a session is already
// active.
func (m *Manager) StartRecording(sessionName, deviceID string, format Format) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, fmt.Errorf("recorder: session %q already active", m.active.Name())
	}
	s, err := Start(m.clk, m.root, sessionName, deviceID, format)
	if err != nil {
		return nil, err
	}
	m.active = s
	return s, nil
}

// StopRecording closes the active session and returns its manifest.
// Calling it again with no session active is a no-op returning the
// previous manifest, not an error.
func (m *Manager) StopRecording() (*Manifest, error) {
	m.mu.Lock()
	s := m.active
	m.active = nil
	m.mu.Unlock()

	if s == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.lastStop, nil
	}
	mf, err := s.Stop()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.lastStop = mf
	m.mu.Unlock()
	return mf, nil
}

// Active reports whether a recording session is currently open. Emitters
// use this (via SessionActive, built from this method) to decide whether
// to call Offer at all.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// CurrentSession returns the active session, or nil.
func (m *Manager) CurrentSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Offer implements emit.Recorder. It is a silent no-op when no session
// is active; write failures are logged, never returned, so a disk error
// cannot stall the calling emitter.
func (m *Manager) Offer(streamName string, v interface{}) {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Offer(streamName, v); err != nil && m.logger != nil {
		m.logger.WithError(err).WithField("stream", streamName).Error("recorder: offer failed")
	}
}
