package exportzap

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-gridexport/export"
)

var _ export.Logger = (*Logger)(nil)

// Logger adapts a zap sugared logger to export.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New wraps logger. A nil logger yields a no-op zap logger.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{sugar: logger.Sugar()}
}

// NewSugared wraps an existing sugared logger.
func NewSugared(sugar *zap.SugaredLogger) *Logger {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	return &Logger{sugar: sugar}
}

// Named returns a logger scoped under name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// With returns a logger carrying the key/value pairs.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
