package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DEFAULT = 0
	DEBUG   = 1
)

// New builds the process logger. verbosity maps onto logr's V levels, so
// verbosity 1 enables V(DEBUG) traces. development switches to console output.
func New(verbosity int, development bool) (logr.Logger, func() error, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))

	zl, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard(), func() error { return nil }, err
	}
	return zapr.NewLogger(zl), zl.Sync, nil
}

// NewTestLogger returns a development logger that prints debug traces.
func NewTestLogger() logr.Logger {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}
