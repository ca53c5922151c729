package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. It discards everything until Init is called.
var Log = zerolog.Nop()

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Field decorates a log event with one key/value pair.
type Field func(*zerolog.Event) *zerolog.Event

func Init(level string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	Log = zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(level))) {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Debug(msg string, fields ...Field) {
	write(Log.Debug(), msg, fields)
}

func Info(msg string, fields ...Field) {
	write(Log.Info(), msg, fields)
}

func Warn(msg string, fields ...Field) {
	write(Log.Warn(), msg, fields)
}

func Error(msg string, fields ...Field) {
	write(Log.Error(), msg, fields)
}

func write(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		e = f(e)
	}
	e.Msg(msg)
}

func Err(err error) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Err(err)
	}
}

func String(key, value string) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Str(key, value)
	}
}

func Strings(key string, values []string) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Strs(key, values)
	}
}

func Int(key string, value int) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Int(key, value)
	}
}

func Int64(key string, value int64) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Int64(key, value)
	}
}

func Bool(key string, value bool) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Bool(key, value)
	}
}

func Duration(key string, value time.Duration) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Dur(key, value)
	}
}

func Any(key string, value any) Field {
	return func(e *zerolog.Event) *zerolog.Event {
		return e.Interface(key, value)
	}
}
