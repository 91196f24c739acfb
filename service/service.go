// File: service/service.go
// Package service
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Service Handler Abstraction (§4.4): a single registration that
// demultiplexes on ctx.Type into call, subscribe, and unsubscribe.
// Compiles to a plain dispatch.HandlerFunc at construction time —
// there is no duck-typing at dispatch time (§9 "Polymorphic handler
// shape"); the Dispatcher never needs to know "service" exists as a
// distinct handler kind.

package service

import (
	"github.com/google/uuid"

	"github.com/jhaynie/appc-daemon/dispatch"
)

// Subscriber is handed to a Subscribe hook so it can push events onto
// the Context's response stream for as long as the subscription lives.
type Subscriber struct {
	Publish func(payload any)
}

// Handlers are the three lifecycle hooks a Service demultiplexes into.
// Call produces exactly one response. Subscribe sets up the stream and
// returns a teardown invoked exactly once, on explicit unsubscribe or
// on connection disconnect (§8 invariant 7) — never both.
type Handlers struct {
	Call      func(ctx *dispatch.Context) error
	Subscribe func(ctx *dispatch.Context, sub Subscriber) (teardown func())
}

// Service binds Handlers to a shared subscription Registry.
type Service struct {
	Name     string
	handlers Handlers
	registry *Registry
}

// New constructs a Service. registry is typically shared across every
// service mounted on a daemon, so disconnect teardown (§8 invariant 8)
// can walk one connection's subscriptions regardless of which service
// they belong to... except subscriptions are additionally namespaced
// by service name in the sid, so two services never collide on the
// same registry.
func New(name string, h Handlers, registry *Registry) *Service {
	return &Service{Name: name, handlers: h, registry: registry}
}

// Handler returns the dispatch.HandlerFunc to register on a Dispatcher.
func (s *Service) Handler() dispatch.HandlerFunc {
	return func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		switch ctx.EffectiveType() {
		case dispatch.TypeSubscribe:
			return s.subscribe(ctx)
		case dispatch.TypeUnsubscribe:
			return s.unsubscribe(ctx)
		default:
			return s.call(ctx)
		}
	}
}

func (s *Service) call(ctx *dispatch.Context) (*dispatch.Context, error) {
	if s.handlers.Call == nil {
		return ctx, dispatch.NewServerError("service " + s.Name + " does not support call")
	}
	err := s.handlers.Call(ctx)
	ctx.Response.Close()
	if err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (s *Service) subscribe(ctx *dispatch.Context) (*dispatch.Context, error) {
	if s.handlers.Subscribe == nil {
		ctx.Response.Close()
		return ctx, dispatch.NewServerError("service " + s.Name + " does not support subscribe")
	}

	sid := s.Name + ":" + uuid.NewString()

	// The ack must precede the first publish (§9): write it before
	// invoking the hook, since the hook may call Publish synchronously.
	ctx.Response.Write(dispatch.Message{
		Status: 200,
		Body:   map[string]any{"type": "subscribe", "sid": sid},
	})

	sub := Subscriber{
		Publish: func(payload any) {
			ctx.Response.Write(dispatch.Message{Status: 200, Body: payload})
		},
	}

	td := s.handlers.Subscribe(ctx, sub)
	if td == nil {
		td = func() {}
	}
	s.registry.Add(ctx.ConnID, sid, ctx.Response, td)

	// Stream stays open: neither a call close nor a subscribe's
	// immediate return terminates the response sink.
	return ctx, nil
}

func (s *Service) unsubscribe(ctx *dispatch.Context) (*dispatch.Context, error) {
	sid, _ := sidFromData(ctx.Data)
	if sid == "" {
		ctx.Response.Close()
		return ctx, dispatch.NewBadRequest("unsubscribe requires a sid")
	}

	found := s.registry.Unsubscribe(ctx.ConnID, sid)
	if !found {
		ctx.Response.Close()
		return ctx, dispatch.NewBadRequest("unknown subscription: " + sid)
	}

	ctx.Response.Write(dispatch.Message{
		Status: 200,
		Body:   map[string]any{"type": "unsubscribe", "sid": sid},
	})
	ctx.Response.Close()
	return ctx, nil
}

func sidFromData(data any) (string, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", false
	}
	sid, ok := m["sid"].(string)
	return sid, ok
}
