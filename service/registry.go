// File: service/registry.go
// Package service
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Subscription registry: a map keyed by connection -> map keyed by sid
// -> (teardown hook, live response sink) (§9 "Subscription registry").
// Disconnect walks a connection's subscriptions and invokes every
// teardown exactly once (§8 invariant 8), terminating each
// subscription's stream in the same step. Sharded by FNV hash of the
// connection id so concurrent subscribe/unsubscribe traffic across
// many connections does not serialize on one lock.

package service

import (
	"hash/fnv"
	"sync"

	"github.com/jhaynie/appc-daemon/dispatch"
)

// teardown is invoked at most once per subscription, either by an
// explicit unsubscribe or by connection disconnect.
type teardown func()

// subscription pairs a teardown hook with the live subscribe Context's
// response sink, so firing it both runs the handler's cleanup and
// terminates the stream the client is reading (§3: subscribe events
// are "terminated by a close message").
type subscription struct {
	once sync.Once
	fn   teardown
	sink *dispatch.ResponseSink
}

func (s *subscription) fire() {
	s.once.Do(func() {
		s.fn()
		if s.sink != nil {
			s.sink.Write(dispatch.Message{
				Status: 200,
				Body:   map[string]any{"type": "unsubscribe"},
			})
			s.sink.Close()
		}
	})
}

// Registry tracks live subscriptions keyed by (connection, sid).
type Registry struct {
	shards []*shard
	mask   uint32
}

type shard struct {
	mu   sync.Mutex
	conn map[string]map[string]*subscription
}

// NewRegistry constructs a sharded registry with shardCount shards
// (rounded up to a power of two; defaults to 16 when shardCount <= 0).
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	n := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{conn: make(map[string]map[string]*subscription)}
	}
	return &Registry{shards: shards, mask: n - 1}
}

func (r *Registry) shardFor(connID string) *shard {
	return r.shards[fnv32(connID)&r.mask]
}

// Add registers a new subscription for (connID, sid) with the given
// teardown hook and the live subscribe Context's response sink. The
// sink receives a termination message and is closed when the
// subscription is torn down, invoked on Unsubscribe or Disconnect.
func (r *Registry) Add(connID, sid string, sink *dispatch.ResponseSink, fn teardown) {
	sh := r.shardFor(connID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	subs, ok := sh.conn[connID]
	if !ok {
		subs = make(map[string]*subscription)
		sh.conn[connID] = subs
	}
	subs[sid] = &subscription{fn: fn, sink: sink}
}

// Unsubscribe tears down and removes one subscription. Reports
// whether a subscription with that sid existed.
func (r *Registry) Unsubscribe(connID, sid string) bool {
	sh := r.shardFor(connID)
	sh.mu.Lock()
	subs, ok := sh.conn[connID]
	if !ok {
		sh.mu.Unlock()
		return false
	}
	sub, ok := subs[sid]
	if ok {
		delete(subs, sid)
		if len(subs) == 0 {
			delete(sh.conn, connID)
		}
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}
	sub.fire()
	return true
}

// Disconnect tears down every subscription registered against connID,
// exactly once each, and removes the connection's bucket (§8 invariant 8).
func (r *Registry) Disconnect(connID string) int {
	sh := r.shardFor(connID)
	sh.mu.Lock()
	subs := sh.conn[connID]
	delete(sh.conn, connID)
	sh.mu.Unlock()

	for _, sub := range subs {
		sub.fire()
	}
	return len(subs)
}

// Count returns the number of live subscriptions for connID.
func (r *Registry) Count(connID string) int {
	sh := r.shardFor(connID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.conn[connID])
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
