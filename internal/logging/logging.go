// Package logging builds the process logger: log/slog on stderr in one of
// three formats, optionally teed into a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log formats.
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatPretty = "pretty"
)

// Rotation defaults for the log file.
const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 30
)

// Options selects level, format and destinations.
type Options struct {
	Level  string
	Format string

	// File, when set, receives a copy of every record.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Console replaces stderr when set.
	Console io.Writer
}

// New returns a logger for opts and a closer for the log file. The closer
// is always non-nil and safe to call more than once.
func New(opts Options) (*slog.Logger, io.Closer) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if opts.Console != nil {
		out = opts.Console
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(opts.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(opts.MaxAgeDays, defaultMaxAgeDays),
		}
		out = io.MultiWriter(out, rotated)
		closer = rotated
	}

	return slog.New(handlerFor(out, lvl, opts.Format)), closer
}

func handlerFor(w io.Writer, lvl slog.Level, format string) slog.Handler {
	switch format {
	case FormatPretty:
		// charm's levels share slog's numbering.
		return charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Level:           charmlog.Level(lvl),
		})
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
}

// ParseLevel maps debug, info, warn or error (any case) to a slog level.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ValidLevel reports whether s names a level ParseLevel accepts.
func ValidLevel(s string) bool {
	_, err := ParseLevel(s)
	return err == nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
