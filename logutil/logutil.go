// Package logutil adds a trace level below slog's Debug to log/slog, for
// the per-token, per-batch bookkeeping messages that are useful when
// chasing a scheduling bug but far too noisy for normal debug logging.
package logutil

import (
	"context"
	"io"
	"log/slog"
)

// LevelTrace sits one slog level increment below LevelDebug, matching the
// "COREINFER_DEBUG=2" convention this module's envconfig.LogLevel follows.
const LevelTrace = slog.LevelDebug - 4

// NewLogger returns a text-handler slog.Logger writing to w at the given
// level, with LevelTrace rendered as "TRACE" rather than "DEBUG-4".
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lv, ok := a.Value.Any().(slog.Level); ok && lv == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))
}

// Trace logs at LevelTrace against the default logger.
func Trace(msg string, args ...any) {
	slog.Default().Log(context.Background(), LevelTrace, msg, args...)
}
