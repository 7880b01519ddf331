// Package logging builds the zerolog logger used by the command line tool
// and adapts it to brevent.Logger.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to w at the given level.
// An unknown level falls back to info.
func New(w io.Writer, app, level string, noColor bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}
	lvl, _ := ParseLevel(level)
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", app).Logger()
}

// ParseLevel maps a config level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// Adapter exposes a zerolog.Logger through the slog-style key/value interface.
type Adapter struct {
	logger zerolog.Logger
}

// NewAdapter wraps logger. Levels are filtered by logger itself.
func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// Debug logs msg with key/value args at debug level.
func (a *Adapter) Debug(msg string, args ...any) { a.log(a.logger.Debug(), msg, args) }

// Info logs msg with key/value args at info level.
func (a *Adapter) Info(msg string, args ...any) { a.log(a.logger.Info(), msg, args) }

// Warn logs msg with key/value args at warn level.
func (a *Adapter) Warn(msg string, args ...any) { a.log(a.logger.Warn(), msg, args) }

// Error logs msg with key/value args at error level.
func (a *Adapter) Error(msg string, args ...any) { a.log(a.logger.Error(), msg, args) }

func (a *Adapter) log(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	// zerolog wants string keys; stringify anything else and pad a dangling key.
	fields := make([]any, 0, len(args)+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
			fields = append(fields, key, args[i])
			i--
			continue
		}
		if i+1 < len(args) {
			fields = append(fields, key, stringer(args[i+1]))
		} else {
			fields = append(fields, key, nil)
		}
	}
	e.Fields(fields).Msg(msg)
}

// stringer renders values zerolog would otherwise encode as empty objects.
func stringer(v any) any {
	switch t := v.(type) {
	case error:
		return t.Error()
	case interface{ String() string }:
		return t.String()
	default:
		return v
	}
}
