// Package plog is the structured logging facade used throughout
// parastream to report worker lifecycle, graph execution, and scheduler
// events. It wraps go.uber.org/zap rather than hand-rolling an encoder,
// keeping the library's own code free of log-formatting concerns while
// still giving tests a way to assert on emitted event ordering via
// zap's observer core.
package plog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is a thin named wrapper around *zap.Logger. Every parastream
// component that wants to report a lifecycle event takes one of these
// rather than a bare *zap.Logger, so a nil Logger (the zero value) is
// always safe to log against.
type Logger struct {
	z *zap.Logger
}

var (
	defaultOnce sync.Once
	defaultLog  *zap.Logger
)

func defaultLogger() *zap.Logger {
	defaultOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		defaultLog = l
	})
	return defaultLog
}

// New wraps an existing *zap.Logger. Passing nil uses the package
// default production logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = defaultLogger()
	}
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, useful as a default
// field value so components never need a nil check before logging.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// NewObserved builds a Logger backed by an in-memory zapcore.ObserverCore,
// letting tests assert on the sequence of emitted events instead of
// racing on sleeps to infer suspension-point ordering.
func NewObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{z: zap.New(core)}, logs
}

func (l *Logger) log(level zapcore.Level, event string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(level, event); ce != nil {
		ce.Write(fields...)
	}
}

// Debug reports a fine-grained suspension/resumption event: worker
// parking, work stealing, graph node completion, scheduler firing.
func (l *Logger) Debug(event string, fields ...zap.Field) { l.log(zapcore.DebugLevel, event, fields...) }

// Info reports a lifecycle milestone: pool started, scheduler closed.
func (l *Logger) Info(event string, fields ...zap.Field) { l.log(zapcore.InfoLevel, event, fields...) }

// Warn reports a recoverable operational condition.
func (l *Logger) Warn(event string, fields ...zap.Field) { l.log(zapcore.WarnLevel, event, fields...) }

// Error reports a failure that a caller should be able to observe.
func (l *Logger) Error(event string, fields ...zap.Field) { l.log(zapcore.ErrorLevel, event, fields...) }
