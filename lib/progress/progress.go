// Package progress provides the append-only message channel that the
// scraper uses for user-facing status, decoupled from any particular
// front end.
package progress

import (
	"fmt"
	"io"
	"log/slog"
)

// Sink receives one human-readable progress line at a time.
type Sink interface {
	Write(message string)
}

// Func adapts a plain function into a Sink.
type Func func(message string)

func (f Func) Write(message string) {
	f(message)
}

// Slog returns a sink that forwards every message to slog at info level.
func Slog() Sink {
	return Func(func(message string) {
		slog.Info(message)
	})
}

// Writer returns a sink that appends each message as a line to w.
func Writer(w io.Writer) Sink {
	return Func(func(message string) {
		fmt.Fprintln(w, message)
	})
}

// Discard swallows all messages.
func Discard() Sink {
	return Func(func(string) {})
}
