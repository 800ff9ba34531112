// Package logger wraps a zap sugared logger behind the small interface the
// EEPROM tool logs through.
//
// Tests should use [Test] or [TestObserved]; [New] is reserved for the CLI.
package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the logging interface used across the tool. It is satisfied by
// zap.SugaredLogger.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// Named returns a child logger with name appended to the logger name.
	Named(name string) Logger

	// Sync flushes any buffered log entries.
	Sync() error
}

// New returns a console logger writing to stderr at the given level.
func New(level zapcore.Level) (Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level.SetLevel(level)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true

	core, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &logger{core.Sugar()}, nil
}

// Test returns a new test Logger for tb.
func Test(tb testing.TB) Logger {
	tb.Helper()

	return &logger{zaptest.NewLogger(tb).Sugar()}
}

// TestObserved returns a new test Logger for tb and the logs recorded at lvl
// and above.
func TestObserved(tb testing.TB, lvl zapcore.Level) (Logger, *observer.ObservedLogs) {
	tb.Helper()
	oCore, logs := observer.New(lvl)
	observe := zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, oCore)
	})

	return &logger{zaptest.NewLogger(tb, zaptest.WrapOptions(observe)).Sugar()}, logs
}

// Nop returns a no-op Logger.
func Nop() Logger {
	return &logger{zap.New(zapcore.NewNopCore()).Sugar()}
}

type logger struct {
	*zap.SugaredLogger
}

func (l *logger) Named(name string) Logger {
	return &logger{l.SugaredLogger.Named(name)}
}
