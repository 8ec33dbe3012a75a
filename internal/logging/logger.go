// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the console format, level, and optional log file.
type Options struct {
	Development bool
	// Level is a zap level name ("debug", "info", ...). Empty means info.
	Level string
	// File, when set, receives a JSON copy of every entry, rotated by size.
	File string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a zap.Logger configured for development or production. The
// returned Closer releases the log file and must be called after Sync.
func New(opts Options) (*zap.Logger, io.Closer, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.Level = zap.NewAtomicLevelAt(level)

	var (
		closer  io.Closer = nopCloser{}
		options []zap.Option
	)
	if opts.File != "" {
		rotator := newFileRotator(opts.File)
		fileCore := zapcore.NewCore(fileEncoder(), zapcore.AddSync(rotator), cfg.Level)
		options = append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
		closer = rotator
	}

	logger, err := cfg.Build(options...)
	if err != nil {
		_ = closer.Close()
		if opts.Development {
			return nil, nil, fmt.Errorf("build dev logger: %w", err)
		}
		return nil, nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, closer, nil
}

func fileEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// newFileRotator rotates at 100 MB and keeps compressed backups.
func newFileRotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
		LocalTime:  true,
		Compress:   true,
	}
}
