// Package transport provides framed connections to remote peers. A
// frame is an opaque byte payload; the chat protocol on top is JSON.
// Two implementations exist: WebSocket (one WS text message per frame)
// and raw TCP (4-byte big-endian length prefix per frame).
package transport

import (
	"errors"
	"time"
)

var (
	// ErrClosed is returned once the connection has been torn down.
	ErrClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by WriteFrame when the peer's send
	// buffer is full. The caller treats the connection as failed.
	ErrSlowConsumer = errors.New("send buffer full")
	// ErrFrameTooLarge is returned for inbound frames over the limit.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Conn is a framed, bidirectional channel to one remote peer.
//
// ReadFrame blocks until the next inbound frame; it is called from a
// single reader goroutine. WriteFrame never blocks: frames are queued
// to a write pump, and a full queue fails fast with ErrSlowConsumer so
// one slow peer cannot stall a fan-out. Close is idempotent.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(p []byte) error
	Close() error
	RemoteAddr() string
}

// Options tunes per-connection behavior.
type Options struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	MaxFrameSize int64
	SendBuffer   int
}

// DefaultOptions returns conservative defaults; production values come
// from the server configuration.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		MaxFrameSize: 4096,
		SendBuffer:   64,
	}
}
