// Package logging builds the process logger: zap with ISO8601 timestamps,
// exposed as a logr.Logger, optionally writing to a rotated file.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level and destination.
type Config struct {
	Level     string // debug, info, warn, error
	File      string // empty logs to stderr
	MaxSizeMB int    // rotate after this size (default 10)
	MaxFiles  int    // rotated files kept (default 3)
	JSON      bool   // JSON encoding instead of console
}

// ParseLevel maps a level name to a zap level. "debug" enables logr V(1).
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger and a function that flushes and closes its sinks.
func New(cfg Config) (logr.Logger, func(), error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return logr.Discard(), func() {}, err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxFiles, 3),
		}
		out, closer = lj, lj
	}

	return NewWithWriter(out, level, cfg.JSON || cfg.File != ""), func() {
		if closer != nil {
			closer.Close()
		}
	}, nil
}

// NewWithWriter builds a logger on an arbitrary writer.
func NewWithWriter(w io.Writer, level zapcore.Level, json bool) logr.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return zapr.NewLogger(zap.New(core))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
