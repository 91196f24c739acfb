// File: dispatch/dispatcher.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatch Engine (§4.3) and Nested Dispatcher Composition (§4.8/§3).
// Grounded on the route-walk/handler-invocation shape of
// highlevel/server.go's findHandler plus the middleware composition
// idiom in lowlevel/server/handler_chain.go, rebuilt around a single
// ordered route table with a per-route next() continuation instead of
// a single global middleware chain, since nested sub-dispatchers need
// their own independently-walked table.

package dispatch

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Dispatcher is an ordered sequence of Routes. When it is mounted, the
// mount prefix is kept on the parent's Route (set by Mount), not on the
// Dispatcher itself. Registering the same pattern twice is permitted;
// first match wins.
type Dispatcher struct {
	mu     sync.RWMutex
	routes []*Route
	logger Logger
	name   string
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithLogger injects the Logger routing decisions (hit, miss, table
// exhausted, repeated next) are reported to. Defaults to NoopLogger.
// Errors from dispatch are returned to the caller and are not logged
// by the Dispatcher.
func WithLogger(l Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithName labels the dispatcher for log lines (useful once several
// nested dispatchers are mounted and a trace line needs to say which
// one matched).
func WithName(name string) Option {
	return func(d *Dispatcher) { d.name = name }
}

// New constructs an empty Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: NoopLogger}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle registers fn as a terminal handler for pattern. Returns an
// INVALID_ARGUMENT error if pattern fails to compile.
func (d *Dispatcher) Handle(pattern string, fn HandlerFunc) error {
	r, err := newFuncRoute(pattern, fn)
	if err != nil {
		return err
	}
	d.append(r)
	return nil
}

// HandleAll registers fn under every pattern in patterns, per §4.2's
// "array of patterns" registration form.
func (d *Dispatcher) HandleAll(patterns []string, fn HandlerFunc) error {
	for _, p := range patterns {
		if err := d.Handle(p, fn); err != nil {
			return err
		}
	}
	return nil
}

// Mount registers nested as a non-terminal sub-dispatcher under
// prefix. Registering "/" on a mounted sub-dispatcher must not log
// (§4.2 diagnostic hygiene note) — Mount itself never logs regardless
// of prefix, so this holds trivially.
func (d *Dispatcher) Mount(prefix string, nested *Dispatcher) error {
	r, err := newNestedRoute(prefix, nested)
	if err != nil {
		return err
	}
	d.append(r)
	return nil
}

func (d *Dispatcher) append(r *Route) {
	d.mu.Lock()
	d.routes = append(d.routes, r)
	d.mu.Unlock()
}

// Call constructs a fresh Context for path with the given payload data
// (defaulting to an empty object when data is nil) and dispatches it.
// This is the entry point for a transport adapter receiving a new
// request; nested descent instead calls Dispatch directly, reusing
// the caller's Context (§4.3: "if payload is already a Context, reuse it").
func (d *Dispatcher) Call(path string, data any) (*Context, error) {
	ctx := NewContext(path)
	if data != nil {
		ctx.Data = data
	}
	return d.Dispatch(ctx)
}

// Dispatch walks the route table against ctx.Path, starting a fresh
// walk of this dispatcher's own table at index 0.
func (d *Dispatcher) Dispatch(ctx *Context) (*Context, error) {
	d.mu.RLock()
	routes := d.routes
	d.mu.RUnlock()
	return d.dispatchFrom(routes, 0, ctx)
}

// dispatchFrom walks routes starting at idx. It is the target both of
// the top-level Dispatch call (idx=0) and of a route's next()
// continuation (idx = matched-index + 1).
func (d *Dispatcher) dispatchFrom(routes []*Route, idx int, ctx *Context) (*Context, error) {
	for i := idx; i < len(routes); i++ {
		route := routes[i]

		params, consumed, ok := route.m.match(ctx.Path)
		if !ok {
			d.logger.Trace("route miss", "dispatcher", d.name, "pattern", route.pattern, "path", ctx.Path)
			continue
		}
		d.logger.Trace("route hit", "dispatcher", d.name, "pattern", route.pattern, "path", ctx.Path)

		// Clear-before-set: params from any earlier attempted match
		// (in this walk or an outer one) are fully overwritten, never merged.
		ctx.setParams(params)

		if route.kind == kindNested {
			return d.descend(route, consumed, ctx)
		}
		return d.invoke(routes, i, route, ctx)
	}

	d.logger.Trace("route table exhausted", "dispatcher", d.name, "path", ctx.Path)
	return ctx, ErrNotFound
}

// descend strips the matched prefix and recurses into the nested
// dispatcher with the same Context, per §8 invariant 3. The nested
// dispatch is terminal for this walk: its result is returned directly,
// the outer walk does not resume afterward.
func (d *Dispatcher) descend(route *Route, consumed string, ctx *Context) (*Context, error) {
	remainder := strings.TrimPrefix(ctx.Path, consumed)
	if remainder == "" {
		remainder = "/"
	} else if !strings.HasPrefix(remainder, "/") {
		remainder = "/" + remainder
	}
	ctx.Path = remainder
	return route.nested.Dispatch(ctx)
}

// invoke runs a terminal route's handler, wiring an at-most-once next
// continuation bound to the routes following this one.
func (d *Dispatcher) invoke(routes []*Route, i int, route *Route, ctx *Context) (*Context, error) {
	var (
		called     int32
		nextResult *Context
		nextErr    error
	)

	next := func() (*Context, error) {
		if !atomic.CompareAndSwapInt32(&called, 0, 1) {
			d.logger.Debug("next() called more than once; ignoring", "dispatcher", d.name, "pattern", route.pattern)
			return nextResult, nextErr
		}
		nextResult, nextErr = d.dispatchFrom(routes, i+1, ctx)
		return nextResult, nextErr
	}

	resultCtx, err := route.fn(ctx, next)
	if resultCtx == nil {
		resultCtx = ctx
	}
	return resultCtx, err
}
