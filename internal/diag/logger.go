// Package diag builds the process logger.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where and how much to log.
type Options struct {
	Level string // debug|info|warn|error ("" = warn)
	File  string // rotating JSON log file; "" = text on Stderr
	// MaxSizeMB and MaxAgeDays bound the rotating file. Zero uses 50 MB
	// and 28 days.
	MaxSizeMB  int
	MaxAgeDays int
	Stderr     io.Writer
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level %q (use debug, info, warn, error)", s)
	}
}

// NewLogger returns a logger for opts and a closer for the underlying file.
// The closer is a no-op when logging to the terminal.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}

	if opts.File == "" {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		return slog.New(slog.NewTextHandler(w, hopts)), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	maxSize, maxAge := opts.MaxSizeMB, opts.MaxAgeDays
	if maxSize <= 0 {
		maxSize = 50
	}
	if maxAge <= 0 {
		maxAge = 28
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: 5,
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(lj, hopts)), lj, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
