// util/log.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package util

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog, the structured-logging library
// gentoomaniac-backup-tool depends on, behind the teacher's own
// Debug/Verbose/Warning/Error call-site shape so the rest of but reads
// the same way util/log.go always did, while every line emitted is now a
// structured, leveled zerolog event instead of a raw fmt.Fprint.
//
// Unlike the teacher, this Logger has no Fatal/Check/CheckError methods
// and never calls os.Exit: core library code always returns errors
// explicitly (see package errs); only cmd/but's command handlers
// translate a returned error into a process exit code.
type Logger struct {
	NErrors int64
	mu      sync.Mutex
	log     zerolog.Logger
	verbose bool
	debug   bool
}

// NewLogger constructs a Logger writing to stderr. verbose/debug enable
// their respective levels, matching the teacher's constructor signature.
func NewLogger(verbose, debug bool) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	} else if verbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return &Logger{
		log:     zerolog.New(w).Level(level).With().Timestamp().Logger(),
		verbose: verbose,
		debug:   debug,
	}
}

func (l *Logger) Debug(f string, args ...interface{}) {
	if l == nil || !l.debug {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Debug().Msgf(f, args...)
}

func (l *Logger) Verbose(f string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Info().Msgf(f, args...)
}

func (l *Logger) Warning(f string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Warn().Msgf(f, args...)
}

func (l *Logger) Error(f string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.NErrors++
	l.log.Error().Msgf(f, args...)
}

// ErrorErr logs err with contextual message f, incrementing NErrors, and
// returns err unchanged so call sites can `return l.ErrorErr(err, ...)`.
func (l *Logger) ErrorErr(err error, f string, args ...interface{}) error {
	if l != nil {
		l.mu.Lock()
		l.NErrors++
		l.log.Error().Err(err).Msgf(f, args...)
		l.mu.Unlock()
	}
	return err
}
