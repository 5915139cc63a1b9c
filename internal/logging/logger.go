// Package logging provides structured logging infrastructure for vidsample.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level is the slog level type.
type Level = slog.Level

// Level aliases for slog levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps "text" or "json" (case-insensitive) to a Format.
// An empty string selects FormatText.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want text or json)", s)
	}
}

// Logger wraps slog.Logger with run-scoped helpers.
type Logger struct {
	*slog.Logger
}

// Config contains logger configuration options.
type Config struct {
	Level   slog.Level
	Output  io.Writer
	Format  Format
	Enabled bool
}

// DefaultConfig logs info and above as text on stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Format:  FormatText,
		Enabled: true,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if !cfg.Enabled {
		return Discard()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a logger that drops all output.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithRun returns a logger that tags every record with the run ID and video path.
func (l *Logger) WithRun(runID, videoPath string) *Logger {
	return &Logger{Logger: l.With("run_id", runID, "video", videoPath)}
}

// WithFrame tags records with a frame index. Used for per-frame failures.
func (l *Logger) WithFrame(index int) *Logger {
	return &Logger{Logger: l.With("frame", index)}
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Global returns the process-wide logger, creating a default one on first use.
func Global() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = New(DefaultConfig())
	}
	return globalLogger
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// Init installs a global logger writing to w at level in the given format.
func Init(level slog.Level, w io.Writer, format Format) {
	SetGlobal(New(Config{
		Level:   level,
		Output:  w,
		Format:  format,
		Enabled: true,
	}))
}
