// Package logging builds the structured loggers shared by the supervisor
// and worker binaries: a log/slog.Logger backed by a JSON handler, with
// file output rotated by lumberjack when a log file path is configured.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/natefinch/lumberjack"
)

// Config controls where log output goes and how it is rotated.
type Config struct {
	// FilePath, if non-empty, writes logs to this file (rotated by
	// lumberjack) in addition to Stderr (Stderr always gets output).
	FilePath string

	MaxSizeMB  int // default 100
	MaxBackups int // default 3
	MaxAgeDays int // default 28

	Level slog.Level

	// Component tags every record, e.g. "supervisor" or "worker", so a
	// shared log file can be filtered by process role.
	Component string
}

func (c *Config) setDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 28
	}
}

// New builds a slog.Logger per cfg. Every record carries a "component"
// attribute so the worker's and supervisor's log streams stay
// distinguishable when they share a destination.
func New(cfg Config) *slog.Logger {
	cfg.setDefaults()

	var out io.Writer = os.Stderr
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With(slog.String("component", cfg.Component))
	}
	return logger
}
