package transcoder

import "sync"

// SimulatedProcess stands in when a real subprocess could not be spawned but
// policy tolerates a degraded session. It discards all media and exists so
// the socket protocol still completes; detailed status must always disclose
// it (Simulated reports true).
type SimulatedProcess struct {
	once    sync.Once
	stopped bool
	mu      sync.Mutex
}

func NewSimulatedProcess() *SimulatedProcess {
	return &SimulatedProcess{}
}

func (s *SimulatedProcess) Write(p []byte) (int, error) {
	return len(p), nil
}

func (s *SimulatedProcess) Stop() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	})
	return nil
}

// Stopped reports whether Stop has been called.
func (s *SimulatedProcess) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *SimulatedProcess) Simulated() bool { return true }
