package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSessions struct{ active, degraded int }

func (f fakeSessions) ActiveCount() int   { return f.active }
func (f fakeSessions) DegradedCount() int { return f.degraded }

type fakeClients struct{ n int }

func (f fakeClients) ConnectedClients() int { return f.n }

type fakeTool struct {
	version string
	err     error
}

func (f fakeTool) Available() (string, error) { return f.version, f.err }

func newTestReporter(sessions fakeSessions, clients fakeClients, tool fakeTool) *Reporter {
	return NewReporter(sessions, clients, tool, zap.NewNop())
}

func TestHealthReportsCountsAndTool(t *testing.T) {
	rp := newTestReporter(
		fakeSessions{active: 3, degraded: 1},
		fakeClients{n: 4},
		fakeTool{version: "ffmpeg version 6.0"},
	)

	rec := httptest.NewRecorder()
	rp.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ffmpegAvailable"])
	assert.Equal(t, "ffmpeg version 6.0", body["ffmpegVersion"])
	assert.Equal(t, float64(3), body["activeStreams"])
	assert.Equal(t, float64(1), body["degradedStreams"])
	assert.Equal(t, float64(4), body["connectedClients"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHealthIsStill200WithoutTool(t *testing.T) {
	rp := newTestReporter(fakeSessions{}, fakeClients{}, fakeTool{err: errors.New("not found")})

	rec := httptest.NewRecorder()
	rp.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// A missing tool is a body-level fact, never a transport failure.
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ffmpegAvailable"])
}

func TestFFmpegCheckNegativeResultInBody(t *testing.T) {
	rp := newTestReporter(fakeSessions{}, fakeClients{}, fakeTool{err: errors.New("exec: ffmpeg: not found")})

	rec := httptest.NewRecorder()
	rp.HandleFFmpegCheck(rec, httptest.NewRequest(http.MethodGet, "/ffmpeg-check", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ffmpegAvailable"])
	assert.Contains(t, body["error"], "not found")
}

func TestFFmpegCheckPositive(t *testing.T) {
	rp := newTestReporter(fakeSessions{}, fakeClients{}, fakeTool{version: "ffmpeg version 6.0"})

	rec := httptest.NewRecorder()
	rp.HandleFFmpegCheck(rec, httptest.NewRequest(http.MethodGet, "/ffmpeg-check", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ffmpegAvailable"])
	assert.Equal(t, "ffmpeg version 6.0", body["version"])
}

func TestPingAnswersPong(t *testing.T) {
	rp := newTestReporter(fakeSessions{}, fakeClients{}, fakeTool{})

	rec := httptest.NewRecorder()
	rp.HandlePing(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestHealthPlainIsHumanReadable(t *testing.T) {
	rp := newTestReporter(fakeSessions{active: 2}, fakeClients{n: 3}, fakeTool{err: errors.New("gone")})

	rec := httptest.NewRecorder()
	rp.HandleHealthPlain(rec, httptest.NewRequest(http.MethodGet, "/health-plain", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2 active streams")
	assert.Contains(t, rec.Body.String(), "ffmpeg unavailable")
}
