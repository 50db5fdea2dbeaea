// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with the originating component.
func New(component string) zerolog.Logger {
	return zerolog.New(os.Stderr).With().
		Str("component", component).
		Timestamp().
		Logger()
}

// Nop returns a disabled logger for tests and optional dependencies.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
