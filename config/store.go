// File: config/store.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package config

import "github.com/jhaynie/appc-daemon/control"

// Runtime wraps control.ConfigStore with the fields appcd reloads at
// runtime (log level, listen address), distinct from the flags kong
// parses once at startup.
type Runtime struct {
	store *control.ConfigStore
}

// NewRuntime builds a Runtime seeded from the parsed CLI/file config.
func NewRuntime(addr, logLevel string) *Runtime {
	r := &Runtime{store: control.NewConfigStore()}
	r.store.SetConfig(map[string]any{
		"addr":      addr,
		"log_level": logLevel,
	})
	return r
}

// Addr returns the current listen address.
func (r *Runtime) Addr() string {
	snap := r.store.GetSnapshot()
	if v, ok := snap["addr"].(string); ok {
		return v
	}
	return ""
}

// LogLevel returns the current log level.
func (r *Runtime) LogLevel() string {
	snap := r.store.GetSnapshot()
	if v, ok := snap["log_level"].(string); ok {
		return v
	}
	return "info"
}

// SetLogLevel updates the runtime log level and fires reload listeners.
func (r *Runtime) SetLogLevel(level string) {
	r.store.SetConfig(map[string]any{"log_level": level})
}

// OnReload registers a hook invoked whenever runtime config changes.
func (r *Runtime) OnReload(fn func()) {
	r.store.OnReload(fn)
}

// Snapshot exposes the full key/value map, e.g. for the debug service.
func (r *Runtime) Snapshot() map[string]any {
	return r.store.GetSnapshot()
}
