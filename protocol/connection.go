// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WSConnection encapsulates a full-duplex WebSocket session over any
// Transport. It owns the inbox/outbox channels and the ping/pong/close
// control-frame bookkeeping; it does not interpret payloads.

package protocol

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTransportClosed is returned by Transport operations after Close.
var ErrTransportClosed = errors.New("protocol: transport closed")

// Transport abstracts the underlying byte stream a WSConnection frames
// messages over. A *net.Conn-backed implementation is the production
// case; tests may substitute an in-memory pipe.
type Transport interface {
	Send(frames [][]byte) error
	Recv() ([][]byte, error)
	Close() error
}

// FrameHandler processes a single decoded data frame (text or binary).
// It must not retain the frame's Payload slice beyond the call.
type FrameHandler interface {
	Handle(frame *WSFrame) error
}

// WSConnection encapsulates a full-duplex WebSocket session.
type WSConnection struct {
	transport Transport
	path      string

	inbox  chan *WSFrame
	outbox chan *WSFrame

	mu      sync.RWMutex
	handler FrameHandler

	done   chan struct{}
	closed int32

	bytesReceived  int64
	bytesSent      int64
	framesReceived int64
	framesSent     int64
}

// NewWSConnection constructs a WSConnection with specified channel capacity.
func NewWSConnection(tr Transport, channelSize int) *WSConnection {
	return NewWSConnectionWithPath(tr, channelSize, "")
}

// NewWSConnectionWithPath constructs a WSConnection carrying the request
// path it was upgraded on, for transport adapters that route by path.
func NewWSConnectionWithPath(tr Transport, channelSize int, path string) *WSConnection {
	return &WSConnection{
		transport: tr,
		path:      path,
		inbox:     make(chan *WSFrame, channelSize),
		outbox:    make(chan *WSFrame, channelSize),
		done:      make(chan struct{}),
	}
}

// Path returns the original request path for routing purposes.
func (c *WSConnection) Path() string {
	return c.path
}

// SendFrame enqueues a WSFrame for outbound transmission.
func (c *WSConnection) SendFrame(frame *WSFrame) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrTransportClosed
	}
	select {
	case c.outbox <- frame:
		return nil
	case <-c.done:
		return ErrTransportClosed
	}
}

// Start launches receive and send loops.
func (c *WSConnection) Start() {
	go c.recvLoop()
	go c.sendLoop()
}

// GetInboxChan returns the inbox channel for receiving incoming frames.
func (c *WSConnection) GetInboxChan() <-chan *WSFrame {
	return c.inbox
}

// Close initiates shutdown: signals loops and closes the transport.
// Idempotent.
func (c *WSConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	return c.transport.Close()
}

// Done returns a channel closed when the connection is closed.
func (c *WSConnection) Done() <-chan struct{} {
	return c.done
}

// SetHandler registers the handler invoked for each inbound data frame.
func (c *WSConnection) SetHandler(h FrameHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// recvLoop continuously reads raw frames from the transport, decodes
// them, answers control frames inline, and dispatches data frames to
// both the inbox channel and the registered handler.
func (c *WSConnection) recvLoop() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		raws, err := c.transport.Recv()
		if err != nil {
			return
		}

		for _, raw := range raws {
			frame, _, err := DecodeFrameFromBytes(raw)
			if err != nil || frame == nil {
				continue
			}
			atomic.AddInt64(&c.framesReceived, 1)
			atomic.AddInt64(&c.bytesReceived, frame.PayloadLen)

			if c.handleControl(frame) {
				continue
			}

			select {
			case c.inbox <- frame:
			case <-c.done:
				return
			}

			c.mu.RLock()
			h := c.handler
			c.mu.RUnlock()
			if h != nil {
				_ = h.Handle(frame)
			}
		}
	}
}

// sendLoop reads frames from outbox, encodes them, and writes them via
// the transport. A write error closes the connection.
func (c *WSConnection) sendLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbox:
			data, err := EncodeFrameToBytesWithMask(frame, frame.Masked)
			if err != nil {
				c.Close()
				return
			}
			if err := c.transport.Send([][]byte{data}); err != nil {
				c.Close()
				return
			}
			atomic.AddInt64(&c.framesSent, 1)
			atomic.AddInt64(&c.bytesSent, frame.PayloadLen)
		}
	}
}

// handleControl answers ping/pong/close control frames per RFC6455.
// Returns true if the frame was a control frame and has been handled.
func (c *WSConnection) handleControl(frame *WSFrame) bool {
	switch frame.Opcode {
	case OpcodePing:
		_ = c.SendFrame(&WSFrame{
			IsFinal:    true,
			Opcode:     OpcodePong,
			PayloadLen: frame.PayloadLen,
			Payload:    frame.Payload,
		})
		return true

	case OpcodePong:
		return true

	case OpcodeClose:
		_ = c.SendFrame(frame)
		c.Close()
		return true

	default:
		return false
	}
}

// GetStats returns a snapshot of connection statistics for metrics reporting.
func (c *WSConnection) GetStats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  atomic.LoadInt64(&c.bytesReceived),
		"bytes_sent":      atomic.LoadInt64(&c.bytesSent),
		"frames_received": atomic.LoadInt64(&c.framesReceived),
		"frames_sent":     atomic.LoadInt64(&c.framesSent),
	}
}
