package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
  allow_simulated: true
  ack_chunks: true
transcoder:
  ffmpeg_path: /usr/local/bin/ffmpeg
  ingest_url: rtmp://ingest.example.com/live
  stop_grace_seconds: 5
client:
  endpoints:
    - http://relay-a.example.com
    - http://relay-b.example.com
  connect_timeout_seconds: 10
  heartbeat_seconds: 20
  reconnect_seconds: 3
  max_reconnects: 7
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", c.Server.Host)
	assert.Equal(t, 9090, c.Server.Port)
	assert.True(t, c.Server.AllowSimulated)
	assert.True(t, c.Server.AckChunks)
	assert.Equal(t, "/usr/local/bin/ffmpeg", c.Transcoder.FFmpegPath)
	assert.Equal(t, "rtmp://ingest.example.com/live", c.Transcoder.IngestURL)
	assert.Equal(t, 5, c.Transcoder.StopGraceSeconds)
	assert.Len(t, c.Client.Endpoints, 2)
	assert.Equal(t, 7, c.Client.MaxReconnects)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, c.Server.Port)
	assert.Equal(t, "0.0.0.0", c.Server.Host)
	assert.False(t, c.Server.AllowSimulated, "simulated fallback must be opt-in")
	assert.Equal(t, "ffmpeg", c.Transcoder.FFmpegPath)
	assert.Equal(t, 3, c.Transcoder.StopGraceSeconds)
	assert.Equal(t, 8, c.Client.ConnectTimeoutSeconds)
	assert.Equal(t, 15, c.Client.HeartbeatSeconds)
	assert.Equal(t, 5, c.Client.ReconnectSeconds)
	assert.Equal(t, 5, c.Client.MaxReconnects)
	assert.NotEmpty(t, c.Client.Endpoints)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "ffmpeg", c.Transcoder.FFmpegPath)
}
