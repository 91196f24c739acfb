// File: dispatch/route.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Route Table: an ordered, append-only-after-registration sequence of
// (pattern, matcher, handler, is_nested) entries (§4.2). Registration
// order is preserved and is the matching order — the reason this is a
// slice rather than a map keyed by compiled pattern: a Go map has no
// stable iteration order, and §8 invariant 1 requires
// first-registered-match-wins determinism.

package dispatch

// HandlerFunc is a terminal route handler. It receives the Context and
// a one-shot next continuation; see NextFunc. Per §4.3's handler
// return contract, a nil Context return means "use the current
// Context" (Go's analogue of the source's awaitable-resolves-to-undefined case).
type HandlerFunc func(ctx *Context, next NextFunc) (*Context, error)

// NextFunc resumes dispatch at the route following the one that
// invoked it. Exactly-once: a second call returns the first call's
// result again without re-dispatching, and logs the double-call.
type NextFunc func() (*Context, error)

// routeKind tags a Route's handler shape, decided once at
// registration so the dispatch engine never duck-types a handler at
// call time (§9 "Polymorphic handler shape").
type routeKind int

const (
	kindFunc routeKind = iota
	kindNested
)

// Route is an immutable registration record.
type Route struct {
	pattern string
	prefix  string // literal mount prefix; non-empty iff kind == kindNested
	m       *matcher
	kind    routeKind
	fn      HandlerFunc
	nested  *Dispatcher
}

// newFuncRoute compiles pattern as a terminal route.
func newFuncRoute(pattern string, fn HandlerFunc) (*Route, error) {
	m, err := compilePattern(pattern, true)
	if err != nil {
		return nil, err
	}
	return &Route{pattern: pattern, m: m, kind: kindFunc, fn: fn}, nil
}

// newNestedRoute compiles prefix as a non-terminal mount point.
func newNestedRoute(prefix string, nested *Dispatcher) (*Route, error) {
	m, err := compilePattern(prefix, false)
	if err != nil {
		return nil, err
	}
	return &Route{pattern: prefix, prefix: prefix, m: m, kind: kindNested, nested: nested}, nil
}
