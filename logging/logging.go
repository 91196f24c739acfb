// Package logging adapts log/slog to dispatch.Logger, with an optional
// rotating file sink via gopkg.in/natefinch/lumberjack.v2. Grounded on
// the console+file slog.Handler composition used elsewhere in the
// retrieved pack for CLI daemons.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package logging

import (
	"context"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jhaynie/appc-daemon/dispatch"
)

// LevelTrace sits below slog.LevelDebug for the Dispatcher's most
// verbose routing diagnostics.
const LevelTrace slog.Level = -8

// Options configures New.
type Options struct {
	Level      string // "trace", "debug", "info", "warn", "error"
	FilePath   string // rotating log file; empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// multiHandler fans records out to every handler in hs.
type multiHandler struct{ hs []slog.Handler }

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.hs {
		_ = h.Handle(ctx, r)
	}
	return nil
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithAttrs(attrs)
	}
	return multiHandler{hs: out}
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithGroup(name)
	}
	return multiHandler{hs: out}
}

// ParseLevel maps a CLI level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a *slog.Logger writing to stderr and, when opts.FilePath
// is set, to a lumberjack-rotated file. The returned io.Closer must be
// closed on shutdown to flush the rotation writer.
func New(opts Options) (*slog.Logger, *lumberjack.Logger) {
	level := ParseLevel(opts.Level)
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	var fw *lumberjack.Logger
	if opts.FilePath != "" {
		fw = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    nonZero(opts.MaxSizeMB, 50),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			MaxAge:     nonZero(opts.MaxAgeDays, 28),
			Compress:   opts.Compress,
		}
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(multiHandler{hs: handlers}), fw
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// SlogAdapter wraps a *slog.Logger as a dispatch.Logger, mapping Trace
// onto LevelTrace since slog has no built-in level below Debug.
type SlogAdapter struct {
	L *slog.Logger
}

var _ dispatch.Logger = SlogAdapter{}

func (a SlogAdapter) Trace(msg string, args ...any) { a.L.Log(context.Background(), LevelTrace, msg, args...) }
func (a SlogAdapter) Debug(msg string, args ...any) { a.L.Debug(msg, args...) }
func (a SlogAdapter) Error(msg string, args ...any) { a.L.Error(msg, args...) }
