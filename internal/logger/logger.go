// Package logger builds the zap loggers used across the service.
package logger

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	validLevels    = []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
	validEncodings = []string{"json", "console"}
)

// Config is the configuration for the logger.
type Config struct {
	// Level, one of debug, info, warn, error, dpanic, panic, fatal.
	Level string
	// Encoding, json or console.
	Encoding string
	// OutputPaths defaults to stdout.
	OutputPaths []string
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Encoding:    "json",
		OutputPaths: []string{"stdout"},
	}
}

// Validate checks level and encoding.
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, c.Level) {
		return fmt.Errorf("logger: invalid level %q, must be one of: %s", c.Level, strings.Join(validLevels, ", "))
	}
	if !slices.Contains(validEncodings, c.Encoding) {
		return fmt.Errorf("logger: invalid encoding %q, must be 'json' or 'console'", c.Encoding)
	}
	return nil
}

// New creates a zap logger from cfg and installs it as the global logger.
func New(cfg *Config) (*zap.Logger, error) {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.Level == "" {
		cfg.Level = defaults.Level
	}
	if cfg.Encoding == "" {
		cfg.Encoding = defaults.Encoding
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = defaults.OutputPaths
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Encoding == "console",
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := zapConfig.Build(zap.AddStacktrace(zapcore.DPanicLevel))
	if err != nil {
		return nil, fmt.Errorf("logger: failed to build logger: %w", err)
	}

	SetGlobal(l)
	return l, nil
}

var (
	globalMu sync.RWMutex
	global   = zap.NewNop()
)

// SetGlobal replaces the process-wide logger returned by L.
func SetGlobal(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// L returns the process-wide logger. It is a no-op logger until New or
// SetGlobal runs.
func L() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Named returns l, or the global logger when l is nil, scoped to component.
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		l = L()
	}
	return l.Named(component)
}
