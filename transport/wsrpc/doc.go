// Package wsrpc implements the WebSocket RPC Transport Adapter (§4.5):
// a TCP listener that performs the WebSocket handshake, frames each
// connection's traffic, and bridges request/response/subscribe
// messages to a dispatch.Dispatcher.
package wsrpc
