// Package logging builds the run-scoped zap logger. Each run writes
// logs/<timestamp>/log.log (info and above) and error.log (warnings and
// above), plus a colored console stream. Components derive named loggers
// from the returned root.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Dir     string // log directory for this run
	Level   string // minimum console level: debug, info, warn, error
	Console bool   // attach the colored console core
}

// New builds the run logger. The caller owns the returned closer; call it at
// shutdown to flush file buffers.
func New(opts Options) (*zap.Logger, func(), error) {
	if opts.Dir == "" {
		return nil, nil, fmt.Errorf("log directory required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	fileEnc := zapcore.NewConsoleEncoder(fileEncoderConfig())

	infoFile, err := os.OpenFile(filepath.Join(opts.Dir, "log.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log.log: %w", err)
	}
	errFile, err := os.OpenFile(filepath.Join(opts.Dir, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		infoFile.Close()
		return nil, nil, fmt.Errorf("open error.log: %w", err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(fileEnc, zapcore.Lock(infoFile), zap.InfoLevel),
		zapcore.NewCore(fileEnc, zapcore.Lock(errFile), zap.WarnLevel),
	}

	if opts.Console {
		consoleCfg := fileEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stderr),
			parseLevel(opts.Level),
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closer := func() {
		_ = logger.Sync()
		infoFile.Close()
		errFile.Close()
	}
	return logger, closer, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
