// Package status exposes the relay's machine-readable liveness and
// capability endpoints. Every endpoint answers HTTP 200 even on negative
// results; "tool unavailable" is a body-level fact, not a transport
// failure.
package status

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SessionCounter is the session manager's view needed for status output.
type SessionCounter interface {
	ActiveCount() int
	DegradedCount() int
}

// ClientCounter is the socket handler's view.
type ClientCounter interface {
	ConnectedClients() int
}

// ToolProber answers whether the transcoding tool can be invoked.
type ToolProber interface {
	Available() (version string, err error)
}

type Reporter struct {
	sessions  SessionCounter
	clients   ClientCounter
	tool      ToolProber
	startedAt time.Time
	logger    *zap.Logger
}

func NewReporter(sessions SessionCounter, clients ClientCounter, tool ToolProber, logger *zap.Logger) *Reporter {
	return &Reporter{
		sessions:  sessions,
		clients:   clients,
		tool:      tool,
		startedAt: time.Now(),
		logger:    logger,
	}
}

type healthResponse struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	FFmpegAvailable  bool   `json:"ffmpegAvailable"`
	FFmpegVersion    string `json:"ffmpegVersion,omitempty"`
	ActiveStreams    int    `json:"activeStreams"`
	DegradedStreams  int    `json:"degradedStreams"`
	ConnectedClients int    `json:"connectedClients"`
	UptimeSeconds    int64  `json:"uptimeSeconds"`
}

func (rp *Reporter) HandleHealth(w http.ResponseWriter, r *http.Request) {
	setHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	version, err := rp.tool.Available()
	resp := healthResponse{
		Status:           "ok",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		FFmpegAvailable:  err == nil,
		FFmpegVersion:    version,
		ActiveStreams:    rp.sessions.ActiveCount(),
		DegradedStreams:  rp.sessions.DegradedCount(),
		ConnectedClients: rp.clients.ConnectedClients(),
		UptimeSeconds:    int64(time.Since(rp.startedAt).Seconds()),
	}
	json.NewEncoder(w).Encode(resp)
}

func (rp *Reporter) HandleHealthPlain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, err := rp.tool.Available()
	tool := "ffmpeg available"
	if err != nil {
		tool = "ffmpeg unavailable"
	}
	fmt.Fprintf(w, "ok - %d active streams, %d clients, %s\n",
		rp.sessions.ActiveCount(), rp.clients.ConnectedClients(), tool)
}

func (rp *Reporter) HandlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "pong")
}

type ffmpegCheckResponse struct {
	FFmpegAvailable bool   `json:"ffmpegAvailable"`
	Version         string `json:"version,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (rp *Reporter) HandleFFmpegCheck(w http.ResponseWriter, r *http.Request) {
	setHeaders(w)

	resp := ffmpegCheckResponse{}
	version, err := rp.tool.Available()
	if err != nil {
		resp.Error = err.Error()
		rp.logger.Warn("ffmpeg check negative", zap.Error(err))
	} else {
		resp.FFmpegAvailable = true
		resp.Version = version
	}
	json.NewEncoder(w).Encode(resp)
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
