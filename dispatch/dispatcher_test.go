package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhaynie/appc-daemon/dispatch"
)

func drainOne(t *testing.T, ctx *dispatch.Context) dispatch.Message {
	t.Helper()
	msg, ok := ctx.Response.Next(context.Background())
	require.True(t, ok, "expected a response message")
	return msg
}

// S1 — literal route.
func TestLiteralRoute(t *testing.T) {
	d := dispatch.New()
	require.NoError(t, d.Handle("/status", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		ctx.Response.Write(dispatch.Message{Status: 200, Body: map[string]any{"ok": true}})
		ctx.Response.Close()
		return nil, nil
	}))

	ctx, err := d.Call("/status", nil)
	require.NoError(t, err)
	msg := drainOne(t, ctx)
	assert.Equal(t, 200, msg.Status)
	assert.Equal(t, map[string]any{"ok": true}, msg.Body)
}

// S2 — parameterized route.
func TestParameterizedRoute(t *testing.T) {
	d := dispatch.New()
	require.NoError(t, d.Handle("/echo/:v", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		ctx.Response.Write(dispatch.Message{Status: 200, Body: ctx.Params["v"]})
		ctx.Response.Close()
		return nil, nil
	}))

	ctx, err := d.Call("/echo/hello", nil)
	require.NoError(t, err)
	msg := drainOne(t, ctx)
	assert.Equal(t, "hello", msg.Body)
}

// S3 — nested dispatcher.
func TestNestedDispatcher(t *testing.T) {
	d2 := dispatch.New()
	require.NoError(t, d2.Handle("/time", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		ctx.Response.Write(dispatch.Message{Status: 200, Body: "T"})
		ctx.Response.Close()
		return nil, nil
	}))

	d1 := dispatch.New()
	require.NoError(t, d1.Mount("/svc", d2))

	ctx, err := d1.Call("/svc/time", nil)
	require.NoError(t, err)
	msg := drainOne(t, ctx)
	assert.Equal(t, "T", msg.Body)
}

// S4 — not found.
func TestNotFound(t *testing.T) {
	d := dispatch.New()
	ctx, err := d.Call("/nope", nil)
	require.Error(t, err)

	de := dispatch.Classify(err)
	assert.Equal(t, dispatch.StatusNotFound, de.StatusCode)
	assert.Equal(t, 404, de.Status)

	// The engine leaves the sink open on error (the transport closes it);
	// closing it here makes Next report whether anything was buffered.
	ctx.Response.Close()
	_, ok := ctx.Response.Next(context.Background())
	assert.False(t, ok, "response must be empty when exhausted")
}

// S6 — middleware next().
func TestMiddlewareNext(t *testing.T) {
	d := dispatch.New()
	require.NoError(t, d.Handle("/a", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		return next()
	}))
	require.NoError(t, d.Handle("/a", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		ctx.Response.Write(dispatch.Message{Status: 200, Body: "ok"})
		ctx.Response.Close()
		return nil, nil
	}))

	ctx, err := d.Call("/a", nil)
	require.NoError(t, err)
	msg := drainOne(t, ctx)
	assert.Equal(t, "ok", msg.Body)
}

// Invariant 4 — next() at-most-once: a second invocation is a no-op,
// not a second descent.
func TestNextAtMostOnce(t *testing.T) {
	calls := 0
	d := dispatch.New()
	require.NoError(t, d.Handle("/a", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		_, _ = next()
		_, _ = next() // second call must not re-dispatch
		return nil, nil
	}))
	require.NoError(t, d.Handle("/a", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		calls++
		ctx.Response.Close()
		return nil, nil
	}))

	_, err := d.Call("/a", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// Invariant 2 — parameter extraction clears prior attempted matches.
func TestParamsOverwriteNotMerge(t *testing.T) {
	d := dispatch.New()
	require.NoError(t, d.Handle("/:first/:second", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		return next()
	}))
	require.NoError(t, d.Handle("/:a/:b", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		assert.Equal(t, map[string]string{"a": "x", "b": "y"}, ctx.Params)
		ctx.Response.Close()
		return nil, nil
	}))

	_, err := d.Call("/x/y", nil)
	require.NoError(t, err)
}

// Invariant 1 — routing determinism: first match in registration order wins.
func TestFirstMatchWins(t *testing.T) {
	var order []string
	d := dispatch.New()
	require.NoError(t, d.Handle("/x", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		order = append(order, "first")
		ctx.Response.Close()
		return nil, nil
	}))
	require.NoError(t, d.Handle("/x", func(ctx *dispatch.Context, next dispatch.NextFunc) (*dispatch.Context, error) {
		order = append(order, "second")
		ctx.Response.Close()
		return nil, nil
	}))

	_, err := d.Call("/x", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, order)
}
