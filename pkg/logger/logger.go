// Package logger holds the process-wide zap logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until Init is called.
var Log = zap.NewNop()

// Options configures Init.
type Options struct {
	Level       string
	File        string
	Service     string
	Development bool
}

// Init builds the global logger. A log file switches to the JSON production encoder
// and tees output to stdout.
func Init(opts Options) error {
	var config zap.Config

	switch {
	case opts.File != "":
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{opts.File, "stdout"}
	case opts.Development:
		config = zap.NewDevelopmentConfig()
	default:
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := config.Build()
	if err != nil {
		return err
	}

	if opts.Service != "" {
		log = log.With(zap.String("service", opts.Service))
	}

	Log = log
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
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

// Named returns a child of the global logger.
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

// Sync flushes buffered entries.
func Sync() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}
