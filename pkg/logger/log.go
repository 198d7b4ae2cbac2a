package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type Log struct {
	zerolog.Logger
	level zerolog.Level
}

// Logger is the global logger instance
var Logger *Log

func init() {
	Logger = New(os.Stderr)
	Logger.SetLogLevel("info")
}

// New builds a logger writing to out. Terminals get the coloured console
// writer, everything else gets one JSON object per line.
func New(out io.Writer) *Log {
	var w io.Writer = out
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return &Log{
		Logger: zerolog.New(w).With().Timestamp().Logger(),
		level:  zerolog.InfoLevel,
	}
}

func (l *Log) SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		l.level = zerolog.DebugLevel
	case "info":
		l.level = zerolog.InfoLevel
	case "warn":
		l.level = zerolog.WarnLevel
	case "error":
		l.level = zerolog.ErrorLevel
	default:
		return
	}
	l.Logger = l.Logger.Level(l.level)
}

// With returns a child logger tagged with the component name.
func (l *Log) With(component string) zerolog.Logger {
	return l.Logger.With().Str("component", component).Logger()
}

// Critical logs at error level and marks the event so operators can grep
// for conditions that stopped a workflow.
func (l *Log) Critical() *zerolog.Event {
	return l.Logger.Error().Bool("critical", true)
}

func (l *Log) Fatal(msg string) {
	l.Logger.Error().Msg(msg)
	os.Exit(1)
}

// Critical marks an event on an arbitrary component logger.
func Critical(zl *zerolog.Logger) *zerolog.Event {
	return zl.Error().Bool("critical", true)
}
