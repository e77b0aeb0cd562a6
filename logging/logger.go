// Package logging provides the debug logger used with --debug-all.
package logging

import (
	"io"

	"github.com/launchdarkly/covtest/framework"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugLogger is a framework.Logger that writes each message as a debug-level entry.
type DebugLogger struct {
	sugar *zap.SugaredLogger
}

// NewDebugLogger creates a DebugLogger that writes human-readable lines to out. The
// component name is added to every line.
func NewDebugLogger(out io.Writer, component string) *DebugLogger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "T"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(out)),
		zapcore.DebugLevel,
	)
	return &DebugLogger{sugar: zap.New(core).Named(component).Sugar()}
}

func (l *DebugLogger) Printf(message string, args ...interface{}) {
	l.sugar.Debugf(message, args...)
}

// Named returns a logger for a sub-component.
func (l *DebugLogger) Named(component string) *DebugLogger {
	return &DebugLogger{sugar: l.sugar.Named(component)}
}

func (l *DebugLogger) Sync() error {
	return l.sugar.Sync()
}

// New returns a DebugLogger writing to out if enabled is true, and otherwise one that
// discards everything.
func New(out io.Writer, component string, enabled bool) *DebugLogger {
	if !enabled {
		return &DebugLogger{sugar: zap.NewNop().Sugar()}
	}
	return NewDebugLogger(out, component)
}

var _ framework.Logger = (*DebugLogger)(nil)
