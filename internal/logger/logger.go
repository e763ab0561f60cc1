package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// FileConfig enables a rotated log file in addition to stderr.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`   // megabytes before rotation (default 10)
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`   // number of backups to keep (default 3)
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"` // days to keep (default 7)
	Compress   bool   `toml:"compress" mapstructure:"compress"`         // Gzip rotated files
}

// Config describes the diagnostic logger. User-facing command output never goes through it.
type Config struct {
	Level  string     `toml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string     `toml:"format" mapstructure:"format"` // text or json
	Color  bool       `toml:"color" mapstructure:"color"`
	File   FileConfig `toml:"file" mapstructure:"file"`
}

// ParseLevel maps a level name to slog.Level. Empty means warn.
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
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Writer returns the rotating file writer, or nil when no path is configured.
func (f FileConfig) Writer() io.WriteCloser {
	if f.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   f.Path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

// New builds a logger writing to stderr and, if configured, to a rotated file.
// The returned closer releases the file and is never nil.
func New(cfg Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var closer io.Closer = nopCloser{}
	w := stderr
	if fw := cfg.File.Writer(); fw != nil {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		w = io.MultiWriter(stderr, fw)
		closer = fw
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		if cfg.Color {
			h = NewColorTextHandler(w, opts, cfg.File.Path != "")
		} else {
			h = slog.NewTextHandler(w, opts)
		}
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
