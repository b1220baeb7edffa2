// Package logger builds the zap logger shared by every requestsync component.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	// "debug" and "trace" switch to the human-readable development encoder.
	Level string
	// File, when set, receives a copy of every entry next to stdout.
	File string
}

// New creates a sugared logger and a flush function the caller should defer.
func New(opts Options) (*zap.SugaredLogger, func(), error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return l.Sugar(), func() { _ = l.Sync() }, nil
}

func buildConfig(opts Options) (zap.Config, error) {
	var cfg zap.Config
	switch opts.Level {
	case "debug", "trace":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "":
		cfg = zap.NewProductionConfig()
	default:
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return zap.Config{}, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}
	return cfg, nil
}
