package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DrFlight7/scorecast-live-streamer/internal/metrics"
	"github.com/DrFlight7/scorecast-live-streamer/internal/transcoder"
)

var (
	// ErrMissingStreamKey rejects a start directive without a destination key.
	ErrMissingStreamKey = errors.New("stream key is required")
	// ErrSessionExists rejects a start directive while a session is live on
	// the same connection. The client must stop the current stream first.
	ErrSessionExists = errors.New("stream already active on this connection")
	// ErrToolUnavailable means the transcoding tool cannot be invoked on
	// this host. Never downgraded to a simulated session.
	ErrToolUnavailable = errors.New("transcoder unavailable on this host")
	// ErrNoSession means a frame or stop arrived for a connection with no
	// active session.
	ErrNoSession = errors.New("no active session for connection")
)

// Manager owns the set of concurrently active relay sessions, keyed by
// connection identity. It supervises each session's subprocess from
// creation to teardown. All methods are safe for concurrent use.
type Manager struct {
	starter        transcoder.Starter
	allowSimulated bool
	logger         *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(starter transcoder.Starter, allowSimulated bool, logger *zap.Logger) *Manager {
	return &Manager{
		starter:        starter,
		allowSimulated: allowSimulated,
		logger:         logger,
		sessions:       make(map[string]*Session),
	}
}

// Start creates a session for connID and spawns its subprocess. The key
// must be non-empty and the connection must not already have a session. If
// the tool is missing entirely the start is refused. If the tool is present
// but the spawn fails, a simulated session is created when policy allows
// it; the returned session then reports Degraded.
func (m *Manager) Start(connID, streamKey string) (*Session, error) {
	if streamKey == "" {
		return nil, ErrMissingStreamKey
	}

	m.mu.Lock()
	if _, ok := m.sessions[connID]; ok {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.mu.Unlock()

	if _, err := m.starter.Available(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}

	proc, err := m.starter.Start(streamKey)
	if err != nil {
		if !m.allowSimulated {
			return nil, fmt.Errorf("start transcoder: %w", err)
		}
		m.logger.Warn("transcoder spawn failed, falling back to simulated session",
			zap.String("conn", connID), zap.Error(err))
		proc = transcoder.NewSimulatedProcess()
	}

	sess := &Session{
		ID:        connID,
		StreamKey: streamKey,
		StartedAt: time.Now(),
		proc:      proc,
	}

	m.mu.Lock()
	if _, ok := m.sessions[connID]; ok {
		// Lost the race to another start on the same connection.
		m.mu.Unlock()
		_ = proc.Stop()
		return nil, ErrSessionExists
	}
	m.sessions[connID] = sess
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	if sess.Degraded() {
		metrics.DegradedSessions.Inc()
	}
	m.logger.Info("session started",
		zap.String("conn", connID), zap.Bool("degraded", sess.Degraded()))
	return sess, nil
}

// WriteChunk pipes one binary frame to connID's subprocess input. A write
// failure is session-fatal: the session is torn down before the error is
// returned.
func (m *Manager) WriteChunk(connID string, data []byte) error {
	m.mu.Lock()
	sess, ok := m.sessions[connID]
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	if err := sess.Write(data); err != nil {
		m.logger.Error("transcoder write failed, ending session",
			zap.String("conn", connID), zap.Error(err))
		m.Teardown(connID)
		return fmt.Errorf("write to transcoder: %w", err)
	}

	metrics.ChunksRelayed.Inc()
	metrics.BytesRelayed.Add(float64(len(data)))
	return nil
}

// Stop ends connID's session on an explicit stop directive.
func (m *Manager) Stop(connID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	m.release(sess)
	m.logger.Info("session stopped", zap.String("conn", connID),
		zap.Duration("duration", time.Since(sess.StartedAt)))
	return nil
}

// Teardown ends connID's session if one exists. Called on socket close or
// error regardless of session state; an abandoned subprocess must never
// outlive its socket. Safe to call when no session exists.
func (m *Manager) Teardown(connID string) {
	m.mu.Lock()
	sess, ok := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()
	if !ok {
		return
	}

	m.release(sess)
	m.logger.Info("session torn down", zap.String("conn", connID))
}

// CloseAll tears down every active session. Used on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, sess := range sessions {
		m.release(sess)
		m.logger.Info("session closed on shutdown", zap.String("conn", id))
	}
}

func (m *Manager) release(sess *Session) {
	if err := sess.teardown(); err != nil {
		m.logger.Warn("transcoder teardown", zap.String("conn", sess.ID), zap.Error(err))
	}
	metrics.ActiveSessions.Dec()
	if sess.Degraded() {
		metrics.DegradedSessions.Dec()
	}
}

// Lookup returns the session for connID, if any.
func (m *Manager) Lookup(connID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[connID]
	return sess, ok
}

// ActiveCount reports the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// DegradedCount reports how many live sessions run without a real
// subprocess.
func (m *Manager) DegradedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if sess.Degraded() {
			n++
		}
	}
	return n
}
