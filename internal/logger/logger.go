// Package logger builds the process-wide zap logger.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	// Debug switches stdout to the console encoder at debug level.
	Debug bool
	// FilePath, when set, adds a rotated JSON file sink.
	FilePath string
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.MessageKey = "message"
	cfg.LevelKey = "level"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// New returns a logger writing to stdout and, optionally, a rotated file.
func New(cfg Config) *zap.Logger {
	return newWithWriter(cfg, zapcore.Lock(os.Stdout))
}

func newWithWriter(cfg Config, stdout zapcore.WriteSyncer) *zap.Logger {
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig())

	consoleEncoder := jsonEncoder
	consoleLevel := zap.InfoLevel
	if cfg.Debug {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		consoleLevel = zap.DebugLevel
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, stdout, consoleLevel)}
	if cfg.FilePath != "" {
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator(cfg.FilePath)), zap.InfoLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func rotator(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}
