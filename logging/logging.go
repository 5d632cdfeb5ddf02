// Package logging holds the zap logger shared by every package of the
// module. By default nothing is logged.
package logging

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// SetLogger replaces the shared logger. Pass nil to restore the silent
// default. Safe for concurrent use.
//
// Levels used:
//   - Debug: solver outcomes per element, range evaluation, invalidations
//   - Info: CLI progress
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// Logger returns the shared logger
func Logger() *zap.Logger {
	return loggerPtr.Load()
}

// Config selects level, encoding and outputs of a logger built by New
type Config struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"` // json or console
	OutputPaths []string `mapstructure:"output_paths"`
}

// ParseLevel converts a level name, defaulting to info
func ParseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// New builds a zap logger from cfg
func New(cfg Config) (*zap.Logger, error) {
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}
	var (
		encCfg   zapcore.EncoderConfig
		encoding = "json"
	)
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	} else {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return l, nil
}
