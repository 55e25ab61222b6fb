// Package applog wraps zerolog into the chainable logger shape this codebase
// threads explicitly through constructors rather than reading from a
// package-level global, per the "no global mutable state" design note.
package applog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper so call sites read applog.Logger instead of
// zerolog.Logger directly, and so chainable With* helpers can live here.
type Logger struct {
	zerolog.Logger
}

// New builds a Logger for the named component. In "development" it renders
// to a human-readable console writer; otherwise it emits structured JSON
// lines to w.
func New(component, environment string, w io.Writer) Logger {
	var writer io.Writer = w
	if environment == "development" {
		writer = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(writer).With().Timestamp().Str("component", component).Logger()
	return Logger{Logger: base}
}

// NewStderr is a convenience constructor used by cmd/tms, mirroring the
// pack's "service name + environment" logger factory shape.
func NewStderr(component, environment string) Logger {
	return New(component, environment, os.Stderr)
}

func (l Logger) WithRequestID(id string) Logger {
	return Logger{Logger: l.Logger.With().Str("request_id", id).Logger()}
}

func (l Logger) WithTenant(tenant string) Logger {
	return Logger{Logger: l.Logger.With().Str("tenant", tenant).Logger()}
}

func (l Logger) WithError(err error) Logger {
	return Logger{Logger: l.Logger.With().Err(err).Logger()}
}
