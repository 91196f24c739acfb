// Package daemonsvc provides the built-in services appcd mounts on
// every root Dispatcher: process status, debug introspection, and a
// graceful-stop hook. Grounded on control/metrics.go and
// control/debug.go, exercised through the Service Handler Abstraction
// instead of being called directly.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package daemonsvc

import (
	"github.com/tidwall/gjson"

	"github.com/jhaynie/appc-daemon/control"
	"github.com/jhaynie/appc-daemon/dispatch"
	"github.com/jhaynie/appc-daemon/service"
)

// Status builds the "/_daemon/status" call-only service, reporting a
// snapshot of the metrics registry.
func Status(metrics *control.MetricsRegistry) *service.Service {
	return service.New("daemon-status", service.Handlers{
		Call: func(ctx *dispatch.Context) error {
			ctx.Response.Write(dispatch.Message{
				Status: 200,
				Body:   metrics.GetSnapshot(),
			})
			return nil
		},
	}, nil)
}

// Debug builds the "/_daemon/debug" call-only service. When the
// request data carries a "probe" string field it dumps just that
// probe (NOT_FOUND if no probe has that name); when it carries a
// "filter" string field it applies that gjson path via filterDump;
// otherwise it dumps every registered probe.
func Debug(probes *control.DebugProbes) *service.Service {
	return service.New("daemon-debug", service.Handlers{
		Call: func(ctx *dispatch.Context) error {
			dump := probes.DumpState()

			if raw, ok := ctx.Data.(map[string]any); ok {
				if name, ok := raw["probe"].(string); ok && name != "" {
					if v, exists := dump[name]; exists {
						ctx.Response.Write(dispatch.Message{Status: 200, Body: v})
						return nil
					}
					return dispatch.ErrNotFound
				}
				if filter, ok := raw["filter"].(string); ok && filter != "" {
					ctx.Response.Write(dispatch.Message{Status: 200, Body: filterDump(dump, filter)})
					return nil
				}
			}

			ctx.Response.Write(dispatch.Message{Status: 200, Body: dump})
			return nil
		},
	}, nil)
}

// filterDump applies a gjson path expression against each probe whose
// value is a string holding JSON, keeping the probe only when the path
// exists. Probes with non-string values are returned unchanged, without
// filtering (best-effort introspection, not a contract).
func filterDump(dump map[string]any, path string) map[string]any {
	out := make(map[string]any, len(dump))
	for name, v := range dump {
		s, ok := v.(string)
		if !ok {
			out[name] = v
			continue
		}
		res := gjson.Get(s, path)
		if res.Exists() {
			out[name] = res.Value()
		}
	}
	return out
}

// Stop builds the "/_daemon/stop" call-only service. onStop is started
// on its own goroutine after the acknowledgment is written to the
// response sink; it does not wait for the acknowledgment to reach the
// client, so shutdown can close the connection before the reply is sent.
func Stop(onStop func()) *service.Service {
	return service.New("daemon-stop", service.Handlers{
		Call: func(ctx *dispatch.Context) error {
			ctx.Response.Write(dispatch.Message{Status: 200, Body: map[string]any{"stopping": true}})
			if onStop != nil {
				go onStop()
			}
			return nil
		},
	}, nil)
}
