package brevent

import (
	"io"
	"log/slog"
)

// Logger is the diagnostic sink used by Client, Prober and Server.
// *slog.Logger satisfies it; internal/logging adapts zerolog to it.
// Logging is best effort and never affects protocol behavior.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// DiscardLogger returns a Logger that drops everything.
func DiscardLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
