// Package logging builds the zap loggers used by rxcall.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger at level. dev selects the human readable development
// encoder; otherwise JSON production output is used. The returned level can
// be changed while the logger is in use.
func New(level string, dev bool) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: %w", err)
	}
	atomicLevel := zap.NewAtomicLevelAt(lvl)

	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atomicLevel
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: build: %w", err)
	}
	return logger, atomicLevel, nil
}

// ReplaceGlobals installs l as zap.L(), which the default undeliverable-error
// sink logs through, and returns a function restoring the previous logger.
func ReplaceGlobals(l *zap.Logger) func() {
	return zap.ReplaceGlobals(l)
}
