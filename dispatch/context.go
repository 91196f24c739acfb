// File: dispatch/context.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Context is the per-request mutable carrier threaded through route
// matching, nested descent, and handler invocation (§3).

package dispatch

// RequestType names the three lifecycle operations a Service demultiplexes on.
type RequestType string

const (
	TypeCall        RequestType = "call"
	TypeSubscribe   RequestType = "subscribe"
	TypeUnsubscribe RequestType = "unsubscribe"
)

// Context carries one request's state across the route table walk.
// A nested dispatcher descends with the *same* Context by reference,
// so mutations made by an inner handler are visible to the caller.
type Context struct {
	// Path is the current (possibly prefix-stripped) path being matched.
	Path string

	// Params maps parameter name to captured string. Populated from the
	// most recent matching route only; cleared before each new match.
	Params map[string]string

	// Data is the client-supplied payload. Never nil; defaults to an
	// empty map.
	Data any

	// Response is the object-mode stream sink handlers write to.
	Response *ResponseSink

	// Status is the integer HTTP-style status, initially 200.
	Status int

	// Type is one of call|subscribe|unsubscribe; absent (empty) means call.
	Type RequestType

	// ConnID opaquely identifies the client connection this Context's
	// Response is bound to, for subscription-registry keying and
	// connection-scoped teardown. The HTTP middleware adapter, which has
	// no persistent connection, sets it to the request's remote address.
	ConnID string

	// ID is the client-chosen correlation token from the Request (§3).
	ID string
}

// NewContext constructs a fresh Context with spec-mandated defaults:
// empty payload, an open response stream, and status 200.
func NewContext(path string) *Context {
	return &Context{
		Path:     path,
		Data:     map[string]any{},
		Response: NewResponseSink(),
		Status:   200,
		Type:     TypeCall,
	}
}

// EffectiveType returns ctx.Type, defaulting to TypeCall when empty.
func (ctx *Context) EffectiveType() RequestType {
	if ctx.Type == "" {
		return TypeCall
	}
	return ctx.Type
}

// setParams replaces Params wholesale — the clear-before-set semantics
// §9 pins: a nested descent's capture must fully overwrite whatever an
// earlier attempted (non-winning, or outer) match left behind, never merge.
func (ctx *Context) setParams(p map[string]string) {
	ctx.Params = p
}
