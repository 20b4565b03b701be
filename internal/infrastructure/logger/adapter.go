// Package logger adapts go.uber.org/zap to the LoggerPort the engine
// packages depend on. Engine code never imports zap directly.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"formscout/internal/application/port/output"
)

var _ output.LoggerPort = (*Adapter)(nil)

// Adapter wraps a sugared zap logger behind the LoggerPort.
type Adapter struct {
	sugar *zap.SugaredLogger
}

// Config selects the underlying zap profile.
type Config struct {
	// Level: debug, info, warn or error. Empty means info.
	Level string
	// Development switches to the human-readable console encoder.
	Development bool
}

// New builds a production (JSON to stderr) or development logger.
func New(cfg Config) (*Adapter, error) {
	level, err := zapcore.ParseLevel(levelOrDefault(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	base, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Adapter{sugar: base.Sugar()}, nil
}

// NewNop returns a logger that drops everything; tests use it.
func NewNop() *Adapter {
	return &Adapter{sugar: zap.NewNop().Sugar()}
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

func (a *Adapter) Debug(msg string, args ...any) { a.sugar.Debugw(msg, args...) }
func (a *Adapter) Info(msg string, args ...any)  { a.sugar.Infow(msg, args...) }
func (a *Adapter) Warn(msg string, args ...any)  { a.sugar.Warnw(msg, args...) }
func (a *Adapter) Error(msg string, args ...any) { a.sugar.Errorw(msg, args...) }

func (a *Adapter) WithField(key string, value any) output.LoggerPort {
	return &Adapter{sugar: a.sugar.With(key, value)}
}

func (a *Adapter) WithFields(fields map[string]any) output.LoggerPort {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Adapter{sugar: a.sugar.With(args...)}
}

// Close flushes buffered entries. Sync on stderr fails on some platforms;
// that is not worth surfacing.
func (a *Adapter) Close() error {
	_ = a.sugar.Sync()
	return nil
}
