package transcoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAvailableWithMissingBinary(t *testing.T) {
	f := NewFFmpeg("/nonexistent/ffmpeg-binary", "rtmp://example/live", time.Second, zap.NewNop())

	_, err := f.Available()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg unavailable")
}

func TestStartWithMissingBinary(t *testing.T) {
	f := NewFFmpeg("/nonexistent/ffmpeg-binary", "rtmp://example/live", time.Second, zap.NewNop())

	_, err := f.Start("abc123")
	require.Error(t, err)
}

func TestNewFFmpegDefaults(t *testing.T) {
	f := NewFFmpeg("", "rtmp://example/live", 0, zap.NewNop())
	assert.Equal(t, "ffmpeg", f.Path)
	assert.Equal(t, 3*time.Second, f.StopGrace)
}

func TestSimulatedProcessDiscardsAndStopsOnce(t *testing.T) {
	p := NewSimulatedProcess()
	assert.True(t, p.Simulated())

	n, err := p.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop(), "repeated stop must be a no-op")
	assert.True(t, p.Stopped())
}
