package zerologger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger implements the ports.Logger interface on top of zerolog.
// JSON output by default; console output is for development.
type Logger struct {
	zl zerolog.Logger
}

// Config controls output format and verbosity.
type Config struct {
	Level   string    // debug, info, warn, error; defaults to info
	Console bool      // Pretty console output instead of JSON
	Out     io.Writer // Defaults to os.Stderr
}

// New creates a zerolog-backed logger.
func New(cfg Config) *Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

func parseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func withFields(ev *zerolog.Event, fields []map[string]interface{}) *zerolog.Event {
	for _, m := range fields {
		ev = ev.Fields(m)
	}
	return ev
}

// Debug logs a message at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.zl.Debug(), fields).Msg(msg)
}

// Info logs a message at info level.
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.zl.Info(), fields).Msg(msg)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.zl.Warn(), fields).Msg(msg)
}

// Error logs an error with its message at error level.
func (l *Logger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	withFields(l.zl.Error().Err(err), fields).Msg(msg)
}
