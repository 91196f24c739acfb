// File: transport/wsrpc/server.go
// Package wsrpc
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server accepts TCP connections, performs the WebSocket HTTP
// handshake, and bridges each resulting connection to a Dispatcher.
// Grounded on the former internal/transport/websocket_listener.go
// Accept() loop, adapted onto protocol.NetTransport and the new
// connHandler bridge rather than the deleted reactor/api stack.

package wsrpc

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jhaynie/appc-daemon/dispatch"
	"github.com/jhaynie/appc-daemon/protocol"
)

// DefaultAddr is the default bind address for the WebSocket RPC server (§6).
const DefaultAddr = "127.0.0.1:1732"

// ChannelSize is the per-connection inbox/outbox buffer depth.
const ChannelSize = 64

// Server listens for inbound WebSocket connections and routes each
// request frame through a Dispatcher.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	Registry   disconnector
	Logger     dispatch.Logger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[string]*protocol.WSConnection
	stopped int32
	boundAt string
}

// NewServer constructs a Server. logger may be nil, in which case the
// no-op logger is used.
func NewServer(d *dispatch.Dispatcher, registry disconnector, logger dispatch.Logger) *Server {
	if logger == nil {
		logger = dispatch.NoopLogger
	}
	return &Server{
		Dispatcher: d,
		Registry:   registry,
		Logger:     logger,
		conns:      make(map[string]*protocol.WSConnection),
	}
}

// ListenAndServe binds addr (DefaultAddr if empty) and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.boundAt = ln.Addr().String()
	s.mu.Unlock()

	return s.serve(ln)
}

// Addr returns the bound address, valid after ListenAndServe begins.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAt
}

func (s *Server) serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.stopped) == 1 {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	hdr, err := protocol.DoHandshakeCore(conn)
	if err != nil {
		s.Logger.Debug("wsrpc: handshake failed", "remote", conn.RemoteAddr().String(), "err", err)
		_ = conn.Close()
		return
	}
	if err := protocol.WriteHandshakeResponse(conn, hdr); err != nil {
		_ = conn.Close()
		return
	}

	connID := uuid.NewString()
	tr := protocol.NewNetTransport(conn)
	wsConn := protocol.NewWSConnection(tr, ChannelSize)
	cctx, cancel := context.WithCancel(context.Background())

	h := &connHandler{
		connID:     connID,
		dispatcher: s.Dispatcher,
		wsConn:     wsConn,
		registry:   s.Registry,
		logger:     s.Logger,
		ctx:        cctx,
		cancel:     cancel,
	}
	wsConn.SetHandler(h)

	s.mu.Lock()
	s.conns[connID] = wsConn
	s.mu.Unlock()

	wsConn.Start()
	s.Logger.Trace("wsrpc: connection accepted", "conn", connID, "remote", conn.RemoteAddr().String())

	<-wsConn.Done()
	h.onDisconnect()

	s.mu.Lock()
	delete(s.conns, connID)
	s.mu.Unlock()
}

// ConnCount reports the number of currently active connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops accepting new connections and closes all active ones.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return nil
	}
	s.mu.Lock()
	ln := s.ln
	conns := make([]*protocol.WSConnection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}
