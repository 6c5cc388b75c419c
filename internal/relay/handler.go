package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DrFlight7/scorecast-live-streamer/internal/metrics"
	"github.com/DrFlight7/scorecast-live-streamer/internal/protocol"
)

// Authorizer gates socket upgrades. Authentication itself lives outside
// this module; the default nil authorizer admits everyone.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// Handler terminates one inbound WebSocket per client, demultiplexes
// control frames from binary media frames, and drives the session manager.
type Handler struct {
	manager    *Manager
	authorizer Authorizer
	ackChunks  bool
	logger     *zap.Logger

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func NewHandler(manager *Manager, authorizer Authorizer, ackChunks bool, logger *zap.Logger) *Handler {
	return &Handler{
		manager:    manager,
		authorizer: authorizer,
		ackChunks:  ackChunks,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the capture page may be served from anywhere
			},
		},
	}
}

// ConnectedClients reports how many sockets are currently open.
func (h *Handler) ConnectedClients() int {
	return int(h.clients.Load())
}

// HandleStream is the relay path. A plain GET without upgrade headers gets
// HTTP 400 with a body naming the required protocol; endpoint probers rely
// on that exact response as a positive reachability signal.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "WebSocket upgrade required on this endpoint",
		})
		return
	}

	if h.authorizer != nil {
		if err := h.authorizer.Authorize(r); err != nil {
			h.logger.Warn("socket rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	conn := &socketConn{ws: ws}

	h.clients.Add(1)
	metrics.ConnectedClients.Inc()
	h.logger.Info("client connected",
		zap.String("conn", connID), zap.String("remote", r.RemoteAddr))

	defer func() {
		// The primary resource-leak defense: whatever state the session was
		// in, its subprocess dies with the socket.
		h.manager.Teardown(connID)
		ws.Close()
		h.clients.Add(-1)
		metrics.ConnectedClients.Dec()
		h.logger.Info("client disconnected", zap.String("conn", connID))
	}()

	if err := conn.writeJSON(protocol.NewConnection()); err != nil {
		h.logger.Error("connection ack failed", zap.String("conn", connID), zap.Error(err))
		return
	}

	h.readLoop(connID, conn)
}

func (h *Handler) readLoop(connID string, conn *socketConn) {
	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("socket read error", zap.String("conn", connID), zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			h.handleChunk(connID, conn, data)
		case websocket.TextMessage:
			h.handleControl(connID, conn, data)
		}
	}
}

func (h *Handler) handleChunk(connID string, conn *socketConn, data []byte) {
	err := h.manager.WriteChunk(connID, data)
	switch {
	case errors.Is(err, ErrNoSession):
		// Frames may race a stop or arrive before a start. Drop, don't kill
		// the socket.
		h.logger.Warn("binary frame without session, dropping",
			zap.String("conn", connID), zap.Int("size", len(data)))
		return
	case err != nil:
		// Session-fatal; the manager already tore the session down.
		h.send(connID, conn, protocol.NewError("transcoder write failed, stream ended"))
		return
	}

	if h.ackChunks {
		h.send(connID, conn, protocol.NewChunkReceived(time.Now()))
	}
}

func (h *Handler) handleControl(connID string, conn *socketConn, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		h.logger.Warn("malformed control frame",
			zap.String("conn", connID), zap.Error(err))
		h.send(connID, conn, protocol.NewError("malformed control message"))
		return
	}

	switch m := msg.(type) {
	case protocol.StreamStart:
		h.handleStart(connID, conn, m)
	case protocol.StreamStop:
		if err := h.manager.Stop(connID); err != nil {
			h.send(connID, conn, protocol.NewError(err.Error()))
			return
		}
		h.send(connID, conn, protocol.NewStreamStatus(protocol.StatusStopped, ""))
	case protocol.Ping:
		h.send(connID, conn, protocol.NewPong(m.Timestamp))
	default:
		h.logger.Debug("ignoring control frame",
			zap.String("conn", connID), zap.Any("frame", m))
	}
}

func (h *Handler) handleStart(connID string, conn *socketConn, m protocol.StreamStart) {
	sess, err := h.manager.Start(connID, m.StreamKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrToolUnavailable):
			metrics.SessionStarts.WithLabelValues("tool_unavailable").Inc()
		case errors.Is(err, ErrMissingStreamKey), errors.Is(err, ErrSessionExists):
			metrics.SessionStarts.WithLabelValues("rejected").Inc()
		default:
			metrics.SessionStarts.WithLabelValues("spawn_failed").Inc()
		}
		h.send(connID, conn, protocol.NewError(err.Error()))
		return
	}

	result := "live"
	if sess.Degraded() {
		result = "degraded"
	}
	metrics.SessionStarts.WithLabelValues(result).Inc()

	// The live transition is asynchronous; the client's streaming state
	// follows this message, not its own send.
	go func() {
		note := ""
		if sess.Degraded() {
			note = "degraded: no transcoder process"
		}
		h.send(connID, conn, protocol.NewStreamStatus(protocol.StatusLive, note))
	}()
}

func (h *Handler) send(connID string, conn *socketConn, v interface{}) {
	if err := conn.writeJSON(v); err != nil {
		h.logger.Warn("socket write failed", zap.String("conn", connID), zap.Error(err))
	}
}

// socketConn serializes writes; gorilla connections allow one concurrent
// writer only.
type socketConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *socketConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}
