package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DrFlight7/scorecast-live-streamer/config"
	"github.com/DrFlight7/scorecast-live-streamer/internal/protocol"
)

// Phase is the controller's client-visible state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseStreaming    Phase = "streaming"
	PhaseError        Phase = "error"
	PhaseDisconnected Phase = "disconnected"
)

// ErrNotStreaming is returned by SendChunk outside the streaming phase; the
// chunk is dropped.
var ErrNotStreaming = errors.New("not streaming, chunk dropped")

// Stats are the transfer counters for the current stream.
type Stats struct {
	BytesSent  int64
	ChunkCount int64
	StartedAt  time.Time
	Latency    time.Duration
}

// Options tune the controller. Zero values take the documented defaults.
type Options struct {
	ConnectTimeout    time.Duration // default 8s
	HeartbeatInterval time.Duration // default 15s
	ReconnectInterval time.Duration // default 5s
	MaxReconnects     int           // default 5
	Clock             clock.Clock   // real clock if nil
}

func (o *Options) applyDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 8 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = 5 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 5
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// OptionsFromConfig maps the client section of the config file onto dial
// options. Zero or missing values fall back to the same defaults as
// applyDefaults.
func OptionsFromConfig(cfg config.Client) Options {
	return Options{
		ConnectTimeout:    time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		HeartbeatInterval: time.Duration(cfg.HeartbeatSeconds) * time.Second,
		ReconnectInterval: time.Duration(cfg.ReconnectSeconds) * time.Second,
		MaxReconnects:     cfg.MaxReconnects,
	}
}

// Controller owns the capture side's single relay socket: lifecycle,
// bounded reconnection, heartbeats, and chunk dispatch. It never holds more
// than one live socket; opening a new one first tears down the old one.
type Controller struct {
	prober *Prober
	opts   Options
	clk    clock.Clock
	dialer *websocket.Dialer
	logger *zap.Logger

	mu                sync.Mutex
	phase             Phase
	conn              *clientConn
	gen               int // bumped on every socket swap; stale handlers check it
	reconnectAttempts int
	userClosed        bool
	lastHeartbeatAt   time.Time
	stats             Stats
	heartbeatStop     chan struct{}
	reconnectTimer    *clock.Timer
}

func NewController(prober *Prober, opts Options, logger *zap.Logger) *Controller {
	opts.applyDefaults()
	return &Controller{
		prober: prober,
		opts:   opts,
		clk:    opts.Clock,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.ConnectTimeout},
		logger: logger,
		phase:  PhaseIdle,
	}
}

// Connect tears down any existing socket, resolves a relay endpoint, opens
// a socket to it, and waits for the relay's connection ack. On success the
// reconnect counter resets and the heartbeat starts.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.teardownLocked()
	c.userClosed = false
	c.phase = PhaseConnecting
	attempt := c.gen
	c.mu.Unlock()

	if err := c.dial(ctx, attempt); err != nil {
		c.mu.Lock()
		if c.gen == attempt {
			c.phase = PhaseError
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// dial runs one connection attempt. The attempt token pins it to the socket
// generation it was started for; if the controller moved on (a user connect
// or disconnect), the attempt abandons its work instead of installing a
// second socket.
func (c *Controller) dial(ctx context.Context, attempt int) error {
	base, err := c.prober.Resolve(ctx)
	if err != nil {
		err = fmt.Errorf("resolve relay endpoint: %w", err)
		c.logger.Error("relay connection failed", zap.Error(err))
		return err
	}
	wsURL, err := SocketURL(base)
	if err != nil {
		c.logger.Error("relay connection failed", zap.Error(err))
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", wsURL, err)
		c.logger.Error("relay connection failed", zap.Error(err))
		return err
	}

	// The relay announces itself before anything else; treat its absence
	// within the connect timeout as a failed connect.
	_ = ws.SetReadDeadline(time.Now().Add(c.opts.ConnectTimeout))
	if err := readConnectionAck(ws); err != nil {
		ws.Close()
		c.logger.Error("relay connection failed", zap.Error(err))
		return err
	}
	_ = ws.SetReadDeadline(time.Time{})

	conn := &clientConn{ws: ws}
	stop := make(chan struct{})

	c.mu.Lock()
	if c.gen != attempt {
		c.mu.Unlock()
		_ = ws.Close()
		return errors.New("connection attempt superseded")
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.phase = PhaseConnected
	c.reconnectAttempts = 0
	c.heartbeatStop = stop
	c.mu.Unlock()

	c.logger.Info("relay connected", zap.String("url", wsURL))

	go c.readLoop(conn, gen)
	go c.heartbeat(conn, stop)
	return nil
}

func readConnectionAck(ws *websocket.Conn) error {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("waiting for relay ack: %w", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		return fmt.Errorf("relay ack: %w", err)
	}
	if _, ok := msg.(protocol.Connection); !ok {
		return fmt.Errorf("relay ack: unexpected frame %T", msg)
	}
	return nil
}

// Disconnect is the clean, user-initiated shutdown. It never triggers the
// reconnect policy. Closing an already-closed socket is a no-op.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.userClosed = true
	streaming := c.phase == PhaseStreaming
	conn := c.conn
	c.mu.Unlock()

	if streaming && conn != nil {
		if err := conn.writeJSON(protocol.NewStreamStop()); err != nil {
			c.logger.Warn("stop on disconnect failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.teardownLocked()
	c.phase = PhaseDisconnected
	c.mu.Unlock()
	c.logger.Info("disconnected")
}

// StartStream asks the relay to begin a session for the given destination
// key, connecting first if no socket is open. It returns once the directive
// is sent; the streaming phase is entered only when the relay reports the
// session live, so the phase tracks real subprocess health rather than
// optimistic local state.
func (c *Controller) StartStream(ctx context.Context, streamKey string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		if err := c.Connect(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		conn = c.conn
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.stats = Stats{StartedAt: c.clk.Now()}
	c.mu.Unlock()

	if err := conn.writeJSON(protocol.NewStreamStart(streamKey)); err != nil {
		return fmt.Errorf("send stream-start: %w", err)
	}
	return nil
}

// StopStream sends the stop directive without waiting for acknowledgment.
func (c *Controller) StopStream() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("no open socket")
	}
	if err := conn.writeJSON(protocol.NewStreamStop()); err != nil {
		return fmt.Errorf("send stream-stop: %w", err)
	}
	return nil
}

// SendChunk forwards one encoded media chunk as a binary frame. Outside the
// streaming phase the chunk is dropped with a warning.
func (c *Controller) SendChunk(data []byte) error {
	c.mu.Lock()
	if c.phase != PhaseStreaming {
		phase := c.phase
		c.mu.Unlock()
		c.logger.Warn("chunk dropped, not streaming", zap.String("phase", string(phase)))
		return ErrNotStreaming
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.writeBinary(data); err != nil {
		return fmt.Errorf("send chunk: %w", err)
	}

	c.mu.Lock()
	c.stats.BytesSent += int64(len(data))
	c.stats.ChunkCount++
	c.mu.Unlock()
	return nil
}

// CheckEndpointHealth reports whether any relay endpoint is reachable. It
// needs no open session socket.
func (c *Controller) CheckEndpointHealth(ctx context.Context) bool {
	_, err := c.prober.Resolve(ctx)
	return err == nil
}

// Phase returns the current controller phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Stats returns a copy of the transfer counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LastHeartbeat returns when the most recent ping was sent; zero before the
// first heartbeat.
func (c *Controller) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeatAt
}

// ReconnectAttempts returns the current reconnect counter.
func (c *Controller) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectAttempts
}

// teardownLocked detaches and closes the current socket, stops the
// heartbeat, and cancels any pending reconnect. Callers hold c.mu. Bumping
// the generation makes handlers of the old socket inert.
func (c *Controller) teardownLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	c.gen++
}

func (c *Controller) readLoop(conn *clientConn, gen int) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			c.handleClosed(gen, err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("undecodable frame from relay", zap.Error(err))
			continue
		}

		switch m := msg.(type) {
		case protocol.StreamStatus:
			c.handleStreamStatus(gen, m)
		case protocol.Pong:
			c.handlePong(gen, m)
		case protocol.Error:
			c.logger.Warn("relay reported error", zap.String("message", m.Message))
		case protocol.ChunkReceived:
			// Receipt acks carry no backpressure signal; nothing to do.
		default:
		}
	}
}

func (c *Controller) handleStreamStatus(gen int, m protocol.StreamStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	switch m.Status {
	case protocol.StatusLive:
		c.phase = PhaseStreaming
		if m.Message != "" {
			c.logger.Warn("stream live with caveat", zap.String("message", m.Message))
		} else {
			c.logger.Info("stream live")
		}
	case protocol.StatusStopped:
		if c.phase == PhaseStreaming {
			c.phase = PhaseConnected
		}
		c.logger.Info("stream stopped")
	}
}

func (c *Controller) handlePong(gen int, m protocol.Pong) {
	latency := c.clk.Now().Sub(time.UnixMilli(m.Timestamp))
	c.mu.Lock()
	if gen == c.gen {
		c.stats.Latency = latency
	}
	c.mu.Unlock()
}

// handleClosed runs when a socket's read loop ends. A user-initiated close
// leaves the phase at disconnected; an unexpected close schedules a bounded
// reconnect at a fixed interval.
func (c *Controller) handleClosed(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// This socket was already replaced or torn down on purpose.
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	if c.userClosed {
		c.phase = PhaseDisconnected
		c.mu.Unlock()
		return
	}

	c.logger.Warn("socket closed unexpectedly", zap.Error(err))
	c.phase = PhaseDisconnected
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

func (c *Controller) scheduleReconnectLocked() {
	if c.reconnectAttempts >= c.opts.MaxReconnects {
		c.phase = PhaseError
		c.logger.Error("reconnect attempts exhausted",
			zap.Int("attempts", c.reconnectAttempts))
		return
	}
	c.phase = PhaseDisconnected
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	c.reconnectTimer = c.clk.AfterFunc(c.opts.ReconnectInterval, func() {
		c.reconnect(attempt)
	})
	c.logger.Info("reconnect scheduled",
		zap.Int("attempt", attempt), zap.Duration("in", c.opts.ReconnectInterval))
}

func (c *Controller) reconnect(attempt int) {
	c.mu.Lock()
	if c.userClosed {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseConnecting
	gen := c.gen
	c.mu.Unlock()

	c.logger.Info("reconnecting", zap.Int("attempt", attempt))

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()
	if err := c.dial(ctx, gen); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
	}
}

func (c *Controller) heartbeat(conn *clientConn, stop chan struct{}) {
	ticker := c.clk.Ticker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := c.clk.Now()
			c.mu.Lock()
			c.lastHeartbeatAt = now
			c.mu.Unlock()
			if err := conn.writeJSON(protocol.NewPing(now)); err != nil {
				// The read loop will observe the broken socket; a missed
				// ping on its own is not grounds for reconnection.
				c.logger.Debug("heartbeat write failed", zap.Error(err))
				return
			}
		}
	}
}

// clientConn serializes writes from the API, the heartbeat, and teardown.
type clientConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *clientConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *clientConn) writeBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *clientConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.Close()
}
