package utils

import (
	"bytes"
	"context"
	"log/slog"
)

const logTimeFormat = "2006-01-02 15:04:05"

// ErrAttr returns a slog attribute for the given error under the "error" key.
func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

// SlogReplacer renders time and duration values as human readable strings.
func SlogReplacer(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindTime:
		return slog.String(a.Key, a.Value.Time().Format(logTimeFormat))
	case slog.KindDuration:
		return slog.String(a.Key, a.Value.Duration().String())
	default:
		return a
	}
}

// LogOnError runs fn and logs msg if it returns an error. Meant for deferred closes.
func LogOnError(l *slog.Logger, fn func() error, msg string) {
	if err := fn(); err != nil {
		l.Error(msg, ErrAttr(err))
	}
}

// SlogWriter is an io.Writer that forwards each written line to a slog logger.
// It lets libraries that only accept a *log.Logger log through slog.
type SlogWriter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogWriter creates a writer logging at warn level.
func NewSlogWriter(logger *slog.Logger) *SlogWriter {
	return &SlogWriter{logger: logger, level: slog.LevelWarn}
}

// WithLevel returns a copy of the writer that logs at the given level.
func (w *SlogWriter) WithLevel(level slog.Level) *SlogWriter {
	return &SlogWriter{logger: w.logger, level: level}
}

func (w *SlogWriter) Write(p []byte) (int, error) {
	msg := bytes.TrimRight(p, "\r\n")
	if len(msg) == 0 {
		return len(p), nil
	}

	w.logger.Log(context.Background(), w.level, string(msg))

	return len(p), nil
}
