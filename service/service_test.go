package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhaynie/appc-daemon/dispatch"
	"github.com/jhaynie/appc-daemon/service"
)

// S5 — subscription stream: ack precedes publishes, unsubscribe tears down once.
func TestSubscriptionLifecycle(t *testing.T) {
	registry := service.NewRegistry(4)
	teardowns := 0

	clock := service.New("clock", service.Handlers{
		Subscribe: func(ctx *dispatch.Context, sub service.Subscriber) func() {
			sub.Publish(map[string]any{"t": 1})
			sub.Publish(map[string]any{"t": 2})
			return func() { teardowns++ }
		},
	}, registry)

	d := dispatch.New()
	require.NoError(t, d.Handle("/clock", clock.Handler()))

	ctx := dispatch.NewContext("/clock")
	ctx.Type = dispatch.TypeSubscribe
	ctx.ConnID = "conn-1"
	_, err := d.Dispatch(ctx)
	require.NoError(t, err)

	ackMsg, ok := ctx.Response.Next(context.Background())
	require.True(t, ok)
	ack := ackMsg.Body.(map[string]any)
	assert.Equal(t, "subscribe", ack["type"])
	sid := ack["sid"].(string)

	m1, ok := ctx.Response.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, map[string]any{"t": 1}, m1.Body)

	m2, ok := ctx.Response.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, map[string]any{"t": 2}, m2.Body)

	// Explicit unsubscribe.
	uctx := dispatch.NewContext("/clock")
	uctx.Type = dispatch.TypeUnsubscribe
	uctx.ConnID = "conn-1"
	uctx.Data = map[string]any{"sid": sid}
	_, err = d.Dispatch(uctx)
	require.NoError(t, err)
	assert.Equal(t, 1, teardowns)

	// The live subscribe stream's sink gets its own termination message
	// and then closes, independent of the unsubscribe call's own ack.
	term, ok := ctx.Response.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "unsubscribe", term.Body.(map[string]any)["type"])
	_, ok = ctx.Response.Next(context.Background())
	assert.False(t, ok, "subscribe stream must close after unsubscribe")

	// Second unsubscribe of the same sid must not fire teardown again.
	_, err = d.Dispatch(&dispatch.Context{
		Path: "/clock", Type: dispatch.TypeUnsubscribe, ConnID: "conn-1",
		Data: map[string]any{"sid": sid}, Response: dispatch.NewResponseSink(),
	})
	assert.Error(t, err)
	assert.Equal(t, 1, teardowns)
}

// Invariant 8 — connection-scoped teardown: N subscriptions, N teardowns.
func TestDisconnectTearsDownAllSubscriptions(t *testing.T) {
	registry := service.NewRegistry(4)
	fired := 0

	echo := service.New("echo", service.Handlers{
		Subscribe: func(ctx *dispatch.Context, sub service.Subscriber) func() {
			return func() { fired++ }
		},
	}, registry)

	d := dispatch.New()
	require.NoError(t, d.Handle("/echo", echo.Handler()))

	sinks := make([]*dispatch.ResponseSink, 0, 3)
	for i := 0; i < 3; i++ {
		ctx := dispatch.NewContext("/echo")
		ctx.Type = dispatch.TypeSubscribe
		ctx.ConnID = "conn-x"
		_, err := d.Dispatch(ctx)
		require.NoError(t, err)
		sinks = append(sinks, ctx.Response)
	}

	assert.Equal(t, 3, registry.Count("conn-x"))
	n := registry.Disconnect("conn-x")
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, fired)
	assert.Equal(t, 0, registry.Count("conn-x"))

	// Disconnect must also drain every live subscribe stream: a reader
	// blocked in Next would otherwise leak forever.
	// Each sink holds its subscribe ack, then the termination message.
	for _, sink := range sinks {
		ack, ok := sink.Next(context.Background())
		require.True(t, ok, "expected the subscribe ack")
		assert.Equal(t, "subscribe", ack.Body.(map[string]any)["type"])
		term, ok := sink.Next(context.Background())
		require.True(t, ok, "expected a termination message before close")
		assert.Equal(t, "unsubscribe", term.Body.(map[string]any)["type"])
		_, ok = sink.Next(context.Background())
		assert.False(t, ok, "sink must close on disconnect")
	}
}

func TestCallWritesSingleResponse(t *testing.T) {
	registry := service.NewRegistry(4)
	status := service.New("status", service.Handlers{
		Call: func(ctx *dispatch.Context) error {
			ctx.Response.Write(dispatch.Message{Status: 200, Body: map[string]any{"ok": true}})
			return nil
		},
	}, registry)

	d := dispatch.New()
	require.NoError(t, d.Handle("/status", status.Handler()))

	ctx, err := d.Call("/status", nil)
	require.NoError(t, err)

	msg, ok := ctx.Response.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, map[string]any{"ok": true}, msg.Body)

	_, ok = ctx.Response.Next(context.Background())
	assert.False(t, ok, "call response sink must close after one message")
}
