// Package logger provides process-wide logging for the Fraktag CLI.
// Debug, Info and Section output is only written in verbose mode; warnings
// and errors are always written. Output is a human-readable console format
// by default and JSON lines when SetJSON(true) is called.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	verbose bool
	jsonOut bool
	output  io.Writer = os.Stderr
	zl                = build(os.Stderr, false)
)

func build(w io.Writer, asJSON bool) zerolog.Logger {
	if asJSON {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	cw := zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	return zerolog.New(cw)
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetJSON switches between console and JSON-lines output.
func SetJSON(v bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonOut = v
	zl = build(output, jsonOut)
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	zl = build(output, jsonOut)
}

// Logger returns the underlying zerolog logger for structured fields.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return zl
}

// Debug logs a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		zl.Debug().Msgf(format, args...)
	}
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if !verbose {
		return
	}
	if jsonOut {
		zl.Info().Str("section", name).Send()
		return
	}
	fmt.Fprintf(output, "\n=== %s ===\n", name)
}

// Info logs an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		zl.Info().Msgf(format, args...)
	}
}

// Warn logs a warning. Degraded oracle and embedding paths report here.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	zl.Warn().Msgf(format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	zl.Error().Msgf(format, args...)
}
