package relay

import (
	"sync"
	"time"

	"github.com/DrFlight7/scorecast-live-streamer/internal/transcoder"
)

// Session binds one client connection to at most one transcoding
// subprocess. The process handle is exclusively owned by the session and is
// torn down exactly once; teardown is idempotent under repeated calls.
type Session struct {
	ID        string
	StreamKey string
	StartedAt time.Time

	proc    transcoder.Process
	writeMu sync.Mutex
}

// Degraded reports whether this session runs without a real subprocess
// (the simulated fallback). It must be surfaced by any detailed status.
func (s *Session) Degraded() bool {
	return s.proc.Simulated()
}

// Write feeds one media chunk to the subprocess input. Writes are
// serialized per session; different sessions write in parallel.
func (s *Session) Write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.proc.Write(data)
	return err
}

func (s *Session) teardown() error {
	return s.proc.Stop()
}
