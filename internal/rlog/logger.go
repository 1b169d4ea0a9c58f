// Package rlog builds the shared *zap.Logger every openroboctl process
// constructs exactly once at startup (§1.1 ambient logging stack).
package rlog

import (
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls where and how log output is written.
type Config struct {
	// FilePath, if non-empty, routes output through a rotating file
	// sink instead of the console.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Debug      bool
}

// New builds a *zap.Logger per cfg. A nil-safe console encoder is used
// when FilePath is empty (interactive runs); otherwise output is
// rotated with lumberjack, matching the size/backup/age knobs
// operators expect from a long-running subsystem process.
func New(name string, cfg Config) (*zap.Logger, error) {
	level := zap.InfoLevel
	if cfg.Debug {
		level = zap.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	if cfg.FilePath == "" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	} else {
		sink := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    nonZero(cfg.MaxSizeMB, 100),
			MaxBackups: nonZero(cfg.MaxBackups, 7),
			MaxAge:     nonZero(cfg.MaxAgeDays, 28),
		}
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(sink), level)
	}

	return zap.New(core, zap.AddCaller()).Named(name), nil
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
