// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // console, json

	// Out receives records below error level, Err the rest.
	// Nil means os.Stdout / os.Stderr.
	Out io.Writer
	Err io.Writer
}

func New(opts Options) (zerolog.Logger, error) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out, errOut := opts.Out, opts.Err
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	var w zerolog.LevelWriter
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		w = splitWriter{low: newConsoleWriter(out), high: newConsoleWriter(errOut)}
	case "json":
		w = splitWriter{low: out, high: errOut}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format: %s (expected: console, json)", opts.Format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s (expected: trace, debug, info, warn, error)", s)
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: !isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// splitWriter routes error and above to the error stream.
type splitWriter struct {
	low  io.Writer
	high io.Writer
}

func (s splitWriter) Write(p []byte) (int, error) { return s.low.Write(p) }

func (s splitWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l >= zerolog.ErrorLevel && l != zerolog.NoLevel {
		return s.high.Write(p)
	}
	return s.low.Write(p)
}
