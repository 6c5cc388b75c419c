// Package transcoder wraps the external transcoding tool (ffmpeg). The tool
// is opaque: it reads raw media on stdin and pushes the converted stream to
// the ingest destination as a side effect. Everything else in the relay
// treats it through the Starter/Process interfaces.
package transcoder

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Process is one running instance of the tool, exclusively owned by a
// single session. Write feeds media bytes to the tool; callers must not
// call Write concurrently (the session manager serializes per session).
// Stop is idempotent: the second and later calls are no-ops.
type Process interface {
	Write(p []byte) (int, error)
	Stop() error
	Simulated() bool
}

// Starter spawns tool processes and reports whether the tool is present on
// the host at all.
type Starter interface {
	Available() (version string, err error)
	Start(streamKey string) (Process, error)
}

// FFmpeg starts ffmpeg processes that read WebM from stdin and push FLV to
// <IngestURL>/<streamKey>.
type FFmpeg struct {
	Path      string
	IngestURL string
	StopGrace time.Duration

	logger *zap.Logger
}

func NewFFmpeg(path, ingestURL string, stopGrace time.Duration, logger *zap.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if stopGrace <= 0 {
		stopGrace = 3 * time.Second
	}
	return &FFmpeg{Path: path, IngestURL: ingestURL, StopGrace: stopGrace, logger: logger}
}

// Available runs the tool's version query and returns the first line of its
// output. A non-zero exit or a missing binary both report as unavailable.
func (f *FFmpeg) Available() (string, error) {
	cmd := exec.Command(f.Path, "-version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	line, _ := bufio.NewReader(&out).ReadString('\n')
	return strings.TrimSpace(line), nil
}

// Start spawns ffmpeg reading media on stdin and pushing to the ingest URL
// for the given stream key. The returned Process owns the subprocess.
func (f *FFmpeg) Start(streamKey string) (Process, error) {
	cmd := exec.Command(f.Path,
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-g", "60",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-f", "flv",
		fmt.Sprintf("%s/%s", strings.TrimRight(f.IngestURL, "/"), streamKey),
	)
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transcoder stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start transcoder: %w", err)
	}

	f.logger.Info("transcoder started", zap.Int("pid", cmd.Process.Pid))

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		grace:  f.StopGrace,
		logger: f.logger,
		done:   make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	grace  time.Duration
	logger *zap.Logger

	stopOnce sync.Once
	stopErr  error
	done     chan struct{} // closed when the subprocess has exited
}

func (p *process) reap() {
	err := p.cmd.Wait()
	if err != nil {
		p.logger.Warn("transcoder exited", zap.Int("pid", p.cmd.Process.Pid), zap.Error(err))
	}
	close(p.done)
}

func (p *process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Stop closes the tool's stdin, which is ffmpeg's clean shutdown signal,
// then kills the subprocess if it has not exited within the grace period.
func (p *process) Stop() error {
	p.stopOnce.Do(func() {
		_ = p.stdin.Close()

		select {
		case <-p.done:
		case <-time.After(p.grace):
			p.logger.Warn("transcoder did not exit in time, killing",
				zap.Int("pid", p.cmd.Process.Pid))
			p.stopErr = p.cmd.Process.Kill()
			<-p.done
		}
	})
	return p.stopErr
}

func (p *process) Simulated() bool { return false }
