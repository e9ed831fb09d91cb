// Package logging wraps zerolog into the single process-wide logger the
// teacher repo models as a global (there: the standard library's log
// package called directly from every method); here it is a package-level
// logger built once by Init and read through Global/New. NewTest builds a
// separate logger over a caller-supplied writer, for unit tests.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	global zerolog.Logger
)

// Init builds the process-wide logger. Safe to call multiple times; only
// the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		global = newLogger(os.Stdout, debug)
	})
}

func newLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// Global returns the process logger, initializing a default (info-level,
// stdout) instance if Init was never called.
func Global() zerolog.Logger {
	Init(false)
	return global
}

// New returns a component-scoped logger tagged with "component".
func New(component string) zerolog.Logger {
	return Global().With().Str("component", component).Logger()
}

// NewTest returns a logger writing to w, for use in unit tests that want
// to assert on emitted log lines without touching the process-wide global.
func NewTest(w io.Writer) zerolog.Logger {
	return newLogger(w, true)
}
