// Package protocol defines the JSON control frames exchanged on the relay
// socket. Binary frames carry opaque media bytes and never pass through
// this package.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type discriminators, carried in the "type" field.
const (
	TypeConnection    = "connection"
	TypeStreamStart   = "stream-start"
	TypeStreamStop    = "stream-stop"
	TypeStreamStatus  = "stream-status"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeError         = "error"
	TypeChunkReceived = "chunk-received"
)

// Stream status values carried by StreamStatus.
const (
	StatusLive    = "live"
	StatusStopped = "stopped"
)

type Connection struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type StreamStart struct {
	Type      string `json:"type"`
	StreamKey string `json:"streamKey"`
}

type StreamStop struct {
	Type string `json:"type"`
}

type StreamStatus struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Ping and Pong carry the sender's epoch-millisecond timestamp; the pong
// echoes it back so the original sender can compute round-trip latency.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChunkReceived acknowledges one binary frame. Its timestamp is ISO-8601,
// unlike the heartbeat's epoch milliseconds.
type ChunkReceived struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func NewConnection() Connection {
	return Connection{Type: TypeConnection, Status: "connected"}
}

func NewStreamStart(key string) StreamStart {
	return StreamStart{Type: TypeStreamStart, StreamKey: key}
}

func NewStreamStop() StreamStop {
	return StreamStop{Type: TypeStreamStop}
}

func NewStreamStatus(status, message string) StreamStatus {
	return StreamStatus{Type: TypeStreamStatus, Status: status, Message: message}
}

func NewPing(at time.Time) Ping {
	return Ping{Type: TypePing, Timestamp: at.UnixMilli()}
}

func NewPong(timestamp int64) Pong {
	return Pong{Type: TypePong, Timestamp: timestamp}
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

func NewChunkReceived(at time.Time) ChunkReceived {
	return ChunkReceived{Type: TypeChunkReceived, Timestamp: at.UTC().Format(time.RFC3339)}
}

// Decode sniffs the "type" field and unmarshals the frame into its concrete
// message struct. Unknown or missing types are an error; the caller decides
// whether that is fatal to the socket (it should not be).
func Decode(data []byte) (interface{}, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode control frame: %w", err)
	}

	var (
		msg interface{}
		err error
	)
	switch head.Type {
	case TypeConnection:
		var m Connection
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeStreamStart:
		var m StreamStart
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeStreamStop:
		var m StreamStop
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeStreamStatus:
		var m StreamStatus
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePing:
		var m Ping
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePong:
		var m Pong
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeError:
		var m Error
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeChunkReceived:
		var m ChunkReceived
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unknown control frame type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
	}
	return msg, nil
}
