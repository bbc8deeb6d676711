// Package ulogger wraps zerolog behind a small interface, the way the
// teacher's util package wraps it in ZLoggerWrapper — minus the
// gocore-driven logger-selection switch, which this module has no
// grounded way to reproduce.
package ulogger

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the interface guachain code logs through.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// ZLogger adapts a zerolog.Logger to the Logger interface.
type ZLogger struct {
	zerolog.Logger
	service string
}

// New builds a ZLogger for service, pretty-printing to stderr when
// pretty is true and emitting newline-delimited JSON otherwise.
func New(service string, level string, pretty bool) *ZLogger {
	if service == "" {
		service = "guachain"
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if pretty {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		base = zerolog.New(writer).With().Timestamp().Str("service", service).Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	}

	return &ZLogger{Logger: base.Level(lvl), service: service}
}

func (z *ZLogger) Debugf(format string, args ...interface{}) {
	z.Logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Infof(format string, args ...interface{}) {
	z.Logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Warnf(format string, args ...interface{}) {
	z.Logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Errorf(format string, args ...interface{}) {
	z.Logger.Error().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Fatalf(format string, args ...interface{}) {
	z.Logger.Fatal().Msg(fmt.Sprintf(format, args...))
}
