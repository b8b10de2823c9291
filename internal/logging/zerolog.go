package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// Zerolog returns a zerolog.Logger writing to the same sink as m at the same
// level. A nil or unconfigured manager yields a disabled logger.
func Zerolog(m *SlogManager) zerolog.Logger {
	if m == nil || m.out == nil {
		return zerolog.Nop()
	}
	w := zerolog.ConsoleWriter{Out: m.out, NoColor: true, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(zerologLevel(m.level)).With().Timestamp().Logger()
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// HubLogger adapts zerolog.Logger to the realtime.Logger interface.
type HubLogger struct {
	logger zerolog.Logger
}

// NewHubLogger creates a new HubLogger wrapping a zerolog.Logger.
func NewHubLogger(logger zerolog.Logger) *HubLogger {
	return &HubLogger{logger: logger}
}

// NewHubLoggerTo is a convenience for tests and tools without a SlogManager.
func NewHubLoggerTo(w io.Writer) *HubLogger {
	return NewHubLogger(zerolog.New(w))
}

// Debug logs a debug message with optional key-value pairs.
func (l *HubLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(toFields(keysAndValues)).Msg(msg)
}

// Info logs an info message with optional key-value pairs.
func (l *HubLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(toFields(keysAndValues)).Msg(msg)
}

// Error logs an error message with optional key-value pairs.
func (l *HubLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(toFields(keysAndValues)).Msg(msg)
}

// toFields converts key-value pairs to a map for zerolog.
func toFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
