// Package httpmw adapts the Dispatcher to net/http middleware (§4.6).
// Grounded on the highlevel/server.go routing shape the package was
// itself derived from, rewritten as a plain http.Handler wrapper
// instead of a reactor-backed listener.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package httpmw

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jhaynie/appc-daemon/dispatch"
)

// Adapter wraps a Dispatcher as http.Handler middleware: next is
// invoked when the request falls outside the Dispatcher's concern
// (HEAD, or an unmatched NOT_FOUND route).
type Adapter struct {
	Dispatcher *dispatch.Dispatcher
	Logger     dispatch.Logger
}

// New constructs an Adapter. logger may be nil.
func New(d *dispatch.Dispatcher, logger dispatch.Logger) *Adapter {
	if logger == nil {
		logger = dispatch.NoopLogger
	}
	return &Adapter{Dispatcher: d, Logger: logger}
}

// Middleware returns an http.Handler wrapping next per the rules in §4.6.
func (a *Adapter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		payload := map[string]any{}
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			var data any
			if len(body) > 0 {
				if err := json.Unmarshal(body, &data); err != nil {
					data = string(body)
				}
			}
			payload["data"] = data
		} else {
			payload["data"] = map[string]any{}
		}

		ctx := dispatch.NewContext(r.URL.Path)
		ctx.Data = payload
		ctx.ConnID = r.RemoteAddr

		_, err := a.Dispatcher.Dispatch(ctx)
		if err != nil {
			de := dispatch.Classify(err)
			if de.StatusCode == dispatch.StatusNotFound {
				next.ServeHTTP(w, r)
				return
			}
			a.writeJSON(w, de.Status, map[string]any{"message": de.Message})
			return
		}

		msg, ok := ctx.Response.Next(context.Background())
		if !ok {
			a.writeJSON(w, ctx.Status, nil)
			return
		}
		a.writeJSON(w, ctx.Status, msg.Body)
	})
}

func (a *Adapter) writeJSON(w http.ResponseWriter, status int, body any) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("httpmw: encode response failed", "err", err)
	}
}
