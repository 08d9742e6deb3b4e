// Package logging builds the structured zap logger shared by the rest of
// the codebase: leveled, field-based logging to stdout, optionally mirrored
// to a size-rotated file via lumberjack when a log file path is configured.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger returned by New.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info"
	// for any other value.
	Level string
	// File, if non-empty, adds a size-rotated file sink alongside stdout.
	File string
}

// New builds a *zap.Logger per Options. The returned logger must be
// flushed with Sync before process exit.
func New(opts Options) (*zap.Logger, error) {
	level := parseLevel(opts.Level)
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		level,
	)

	cores := []zapcore.Core{consoleCore}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    64, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			level,
		)
		cores = append(cores, fileCore)
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, nil
}

func parseLevel(s string) zapcore.Level {
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
