// Package logger provides the single process-wide structured logger.
//
// Every other component takes its dependencies explicitly; the logger is the
// one piece of ambient, package-level state in the system (see DESIGN.md).
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

func init() {
	Configure(os.Stderr, zerolog.InfoLevel)
}

// Configure replaces the global logger's sink and minimum level. Called once
// at startup from the config-loaded level; safe to call again in tests.
func Configure(w io.Writer, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// SetLevelName parses a textual level ("debug", "info", "warn", "error") and
// applies it, defaulting to info on an unrecognized name.
func SetLevelName(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	mu.Lock()
	defer mu.Unlock()
	log = log.Level(lvl)
}

func fields(e *zerolog.Event, component string, f map[string]interface{}) *zerolog.Event {
	e = e.Str("component", component)
	for k, v := range f {
		e = e.Interface(k, v)
	}
	return e
}

// InfoCF logs an info-level message tagged with a component name and
// arbitrary structured fields.
func InfoCF(component, msg string, f map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	fields(log.Info(), component, f).Msg(msg)
}

// WarnCF logs a warning-level message.
func WarnCF(component, msg string, f map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	fields(log.Warn(), component, f).Msg(msg)
}

// ErrorCF logs an error-level message.
func ErrorCF(component, msg string, f map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	fields(log.Error(), component, f).Msg(msg)
}

// DebugCF logs a debug-level message.
func DebugCF(component, msg string, f map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	fields(log.Debug(), component, f).Msg(msg)
}

// Info logs without a component tag, for top-level startup/shutdown messages.
func Info(msg string) {
	mu.RLock()
	defer mu.RUnlock()
	log.Info().Msg(msg)
}

// Error logs an error without a component tag.
func Error(msg string, err error) {
	mu.RLock()
	defer mu.RUnlock()
	log.Error().Err(err).Msg(msg)
}

// Now is a small seam kept for log timestamp stability in tests.
var Now = time.Now
