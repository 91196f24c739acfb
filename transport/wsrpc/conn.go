// File: transport/wsrpc/conn.go
// Package wsrpc
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection bridge between protocol.WSConnection frames and the
// Dispatcher. Grounded on internal/websocket's former
// Connection/Upgrader pair (zero-copy receive loop dispatching to an
// api.Handler), adapted to decode each frame as a Request, build a
// Context whose response stream is wired to write matching outbound
// frames, and invoke the Dispatcher per §4.5.

package wsrpc

import (
	"context"

	"github.com/jhaynie/appc-daemon/dispatch"
	"github.com/jhaynie/appc-daemon/protocol"
)

// connHandler adapts inbound WSFrames to dispatcher calls for one
// connection and implements protocol.FrameHandler. ctx/cancel are
// connection-scoped: cancel fires on disconnect so every in-flight
// dispatch bound to this connection stops blocking on its response
// stream (§5) instead of leaking a drain goroutine per request.
type connHandler struct {
	connID     string
	dispatcher *dispatch.Dispatcher
	wsConn     *protocol.WSConnection
	registry   disconnector
	logger     dispatch.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// disconnector is the subset of service.Registry the transport needs,
// kept narrow so wsrpc does not import the service package.
type disconnector interface {
	Disconnect(connID string) int
}

func (h *connHandler) Handle(frame *protocol.WSFrame) error {
	enc := encodingJSON
	if frame.Opcode == protocol.OpcodeBinary {
		enc = encodingMsgpack
	}

	req, err := decodeRequest(enc, frame.Payload)
	if err != nil {
		h.logger.Debug("wsrpc: dropping malformed frame", "conn", h.connID, "err", err)
		return nil
	}

	ctx := dispatch.NewContext(req.Path)
	ctx.ID = req.ID
	ctx.ConnID = h.connID
	ctx.Type = requestType(req.Type)
	if req.Data != nil {
		ctx.Data = req.Data
	}

	go h.run(ctx, enc)
	return nil
}

func (h *connHandler) run(ctx *dispatch.Context, enc encoding) {
	_, dispErr := h.dispatcher.Dispatch(ctx)
	if dispErr != nil {
		ctx.Response.Close()
	}

	for {
		msg, ok := ctx.Response.Next(h.ctx)
		if !ok {
			break
		}
		h.send(ctx.ID, enc, msg.Status, string(msg.StatusCode), msg.Body)
	}

	// If the connection was cancelled out from under us, the outbound
	// frame (including this error frame) is discarded (§5) rather than
	// sent on a connection that's already gone.
	if dispErr != nil && h.ctx.Err() == nil {
		de := dispatch.Classify(dispErr)
		h.send(ctx.ID, enc, de.Status, string(de.StatusCode), de.Message)
	}
}

func (h *connHandler) send(id string, enc encoding, status int, statusCode string, body any) {
	payload, err := encodeResponse(enc, wireResponse{
		ID: id, Status: status, StatusCode: statusCode, Message: body,
	})
	if err != nil {
		h.logger.Error("wsrpc: encode response failed", "conn", h.connID, "err", err)
		return
	}

	opcode := byte(protocol.OpcodeText)
	if enc == encodingMsgpack {
		opcode = protocol.OpcodeBinary
	}
	_ = h.wsConn.SendFrame(&protocol.WSFrame{
		IsFinal:    true,
		Opcode:     opcode,
		PayloadLen: int64(len(payload)),
		Payload:    payload,
	})
}

// onDisconnect cancels every in-flight dispatch bound to this
// connection and tears down every subscription it owns.
func (h *connHandler) onDisconnect() {
	h.cancel()
	n := h.registry.Disconnect(h.connID)
	if n > 0 {
		h.logger.Debug("wsrpc: connection disconnect teardown", "conn", h.connID, "subscriptions", n)
	}
}
