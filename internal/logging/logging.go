// Package logging builds the zap loggers steward writes through and rotates
// the log files it leaves behind under .claude/steward/logs/.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options mirrors the logging section of the steward config.
type Options struct {
	Level    string // debug, info, warn, error
	File     string // log file name inside the logs dir
	MaxBytes int64  // rotate when the file grows past this
	Keep     int    // rotated files retained
	Compress bool   // gzip rotated files
}

// DefaultOptions returns the options used when no config is available.
func DefaultOptions() Options {
	return Options{
		Level:    "info",
		File:     "steward.log",
		MaxBytes: 1024 * 1024,
		Keep:     5,
		Compress: true,
	}
}

// ParseLevel maps a config level string to a zap level. Unknown strings
// fall back to info.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a stderr-only logger for commands that run outside a workspace.
func New(level string, verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// NewWorkspace builds a logger that tees to stderr and to the workspace log
// file, rotating the file first if it has outgrown opts.MaxBytes. The
// returned close func syncs and releases the file handle.
func NewWorkspace(logsDir string, opts Options, verbose bool) (*zap.Logger, func(), error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	// Best effort: a failed rotation should not block logging
	_, _ = RotateIfLarge(logsDir, opts)

	path := filepath.Join(logsDir, opts.File)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := ParseLevel(opts.Level)
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level)
	stderrCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stderr), level)

	logger := zap.New(zapcore.NewTee(fileCore, stderrCore))
	closeFn := func() {
		_ = logger.Sync()
		_ = file.Close()
	}
	return logger, closeFn, nil
}
