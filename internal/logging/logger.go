// Package logging builds the application's zap logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file written inside the configured directory.
const FileName = "devprobe.log"

// New returns a JSON logger at level. With a non-empty dir it writes to a
// rotated file there; otherwise to stderr. Stdout is left alone.
func New(level, dir string) (*zap.Logger, error) {
	if dir == "" {
		return NewWithWriter(level, os.Stderr)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return NewWithWriter(level, &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
}

// NewWithWriter returns a JSON logger at level writing to w.
func NewWithWriter(level string, w io.Writer) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
