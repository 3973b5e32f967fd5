// Package logging wraps zap with the small surface the pipeline needs.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used throughout the application.
type Logger struct {
	*zap.SugaredLogger
}

// Config holds configuration for the logger.
type Config struct {
	Level      string `yaml:"level"`
	OutputPath string `yaml:"output_path"`
	DevMode    bool   `yaml:"dev_mode"`
}

// DefaultConfig returns production defaults: info-level JSON to stdout.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		OutputPath: "stdout",
	}
}

// New creates a logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "stdout"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapConfig zap.Config
	if cfg.DevMode {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{cfg.OutputPath}

	zapLogger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{zapLogger.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// With adds key-value context and keeps the wrapper type.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{l.SugaredLogger.With(args...)}
}
