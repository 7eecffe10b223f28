// Package logger defines the logging contract used by core packages. The
// zerolog implementation lives in infra/logger; each instance is bound to a
// component name.
package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields, such as per step counts.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
