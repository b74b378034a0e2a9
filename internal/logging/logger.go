// Package logging configures the process-wide zerolog logger with
// console and file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls log verbosity and destinations.
type Config struct {
	Level   string // "debug", "info", "warn", "error"
	File    string // log file path; empty disables file output
	Console bool   // mirror logs to stderr
}

// Logger owns the log file handle and the console toggle. All packages
// log through the zerolog global; Logger only reconfigures it.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	level   zerolog.Level
	console bool
}

// Setup opens the log file (if configured) and installs the global
// logger. The console stream goes to stderr so it never collides with
// terminal UI output on stdout.
func Setup(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	l := &Logger{
		level:   level,
		console: cfg.Console,
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		l.file = f
		l.path = cfg.File
	}

	l.apply()
	log.Debug().Str("level", level.String()).Str("file", l.path).Msg("logging: configured")
	return l, nil
}

// apply rebuilds the global logger from the current state.
func (l *Logger) apply() {
	l.mu.Lock()
	defer l.mu.Unlock()

	var writers []io.Writer
	if l.file != nil {
		writers = append(writers, l.file)
	}
	if l.console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).
		Level(l.level).
		With().
		Timestamp().
		Logger()
}

// SuppressConsole drops the console stream, leaving file output only.
// Called when the terminal UI takes over the screen.
func (l *Logger) SuppressConsole() {
	l.mu.Lock()
	l.console = false
	l.mu.Unlock()
	l.apply()
}

// RestoreConsole re-enables the console stream after the terminal UI
// releases the screen.
func (l *Logger) RestoreConsole() {
	l.mu.Lock()
	l.console = true
	l.mu.Unlock()
	l.apply()
}

// Path returns the active log file path, empty when file output is
// disabled.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close releases the log file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
