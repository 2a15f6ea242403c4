package logger

import (
	"io"
	"log/slog"
)

// NewSlogLogger returns a module-less Logger writing JSON lines to w at the given
// level. A nil writer discards output. Intended for tests and CLI one-shots.
func NewSlogLogger(w io.Writer, level LogLevel) Logger {
	if w == nil {
		w = io.Discard
	}
	lvl := parseLogLevel(string(level))
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return redactAttr(groups, a)
		},
	})
	return &moduleLogger{logger: slog.New(h), level: lvl}
}

// NewDiscardLogger returns a Logger that drops everything.
func NewDiscardLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError)
}
