// Package modules runs the configured module commands and merges their JSON
// output into a single document.
package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tastythames/dmon-worker/internal/config"
)

var (
	ErrInvalidJSON = errors.New("output is not valid JSON")
	ErrInvalidUTF8 = errors.New("output is not valid UTF-8")
)

// ModuleExecutionError fails the whole cycle. Output is the raw stdout.
type ModuleExecutionError struct {
	Module  string
	Command string
	Output  string
	Err     error
}

func (e *ModuleExecutionError) Error() string {
	msg := fmt.Sprintf("module %q: %v", e.Module, e.Err)
	if e.Output != "" {
		msg += fmt.Sprintf(" (output: %q)", truncate(e.Output, 256))
	}
	return msg
}

func (e *ModuleExecutionError) Unwrap() error { return e.Err }

// Observer is told about every finished module, successful or not.
type Observer func(module string, took time.Duration, err error)

type Options struct {
	WorkerID string
	Logger   zerolog.Logger
	Observer Observer
}

// Aggregate runs mods in order. The first failing module aborts the run and
// no document is returned.
func Aggregate(ctx context.Context, r Runner, mods []config.Module, opts Options) (*Document, error) {
	doc := NewDocument()
	log := opts.Logger.With().Str("worker", opts.WorkerID).Logger()

	if len(mods) == 0 {
		log.Warn().Msg("no modules found in configuration")
		return doc, nil
	}

	for _, m := range mods {
		log.Info().Str("module", m.Name).Str("command", m.Command).Msg("module running")

		start := time.Now()
		v, err := runOne(ctx, r, m)
		if opts.Observer != nil {
			opts.Observer(m.Name, time.Since(start), err)
		}
		if err != nil {
			return nil, err
		}
		doc.Set(m.Name, v)
	}
	return doc, nil
}

func runOne(ctx context.Context, r Runner, m config.Module) (json.RawMessage, error) {
	out, err := r.Run(ctx, m.Command)
	if err != nil {
		return nil, &ModuleExecutionError{Module: m.Name, Command: m.Command, Output: string(out), Err: err}
	}

	trimmed := bytes.TrimSpace(out)
	if !json.Valid(trimmed) {
		return nil, &ModuleExecutionError{Module: m.Name, Command: m.Command, Output: string(out), Err: ErrInvalidJSON}
	}
	// json.Valid lets raw non-UTF-8 bytes through inside strings
	if !utf8.Valid(trimmed) {
		return nil, &ModuleExecutionError{Module: m.Name, Command: m.Command, Output: string(out), Err: ErrInvalidUTF8}
	}
	return json.RawMessage(trimmed), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
