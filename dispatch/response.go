// File: dispatch/response.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The Context's response sink: a multi-producer, single-consumer
// object-mode stream with a closed flag, per §9's "Response sink"
// design note. One sink per Context; transport adapters drain it to
// the wire, tests can drain it to a slice.
//
// Buffered on github.com/eapache/queue, a ring-buffer-backed growable
// FIFO, rather than an unbounded slice-append queue: writers never
// block on the consumer, and the queue only grows when genuinely
// backlogged.

package dispatch

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// Message is one element written to a response sink: either a
// completed call's body, a subscribe acknowledgment, a publish event,
// or an error.
type Message struct {
	Status     int
	StatusCode StatusCode
	Body       any
}

// ResponseSink is the object-mode stream a Context's handler writes
// to and a transport adapter drains.
type ResponseSink struct {
	mu     sync.Mutex
	q      *queue.Queue
	notify chan struct{}
	closed bool
	done   chan struct{}
}

// NewResponseSink constructs an empty, open sink.
func NewResponseSink() *ResponseSink {
	return &ResponseSink{
		q:      queue.New(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Write pushes one message. Per §5 cancellation semantics, a write
// after Close is a silent no-op: handlers must not assume delivery
// once the sink is closed.
func (s *ResponseSink) Write(msg Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.q.Add(msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close marks the sink closed; subsequent writes are no-ops and Next
// drains any remaining buffered messages before reporting closure.
func (s *ResponseSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *ResponseSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Next blocks until a message is available, the sink is closed with
// nothing left buffered, or ctx is done. ok is false only in the
// latter two cases.
func (s *ResponseSink) Next(ctx context.Context) (Message, bool) {
	for {
		s.mu.Lock()
		if s.q.Length() > 0 {
			msg := s.q.Peek().(Message)
			s.q.Remove()
			s.mu.Unlock()
			return msg, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Message{}, false
		}

		select {
		case <-s.notify:
			continue
		case <-s.done:
			continue
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// Drain collects every currently- and eventually-buffered message
// until the sink closes, for tests that want a plain slice.
func (s *ResponseSink) Drain(ctx context.Context) []Message {
	var out []Message
	for {
		msg, ok := s.Next(ctx)
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}
