// Package logger provides the engine's append-only structured log.
//
// Every engine component logs through a single process-wide slog.Logger,
// installed by Init. In addition to the console mirror, Init can tee every
// record to a per-job log file opened beside the checkpoint path.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var defaultLogger *slog.Logger

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", levelStr)
	}
}

// lineHandler renders "[<ISO-8601>] <message> <args...>", with error
// records prefixed "[ERROR]". It does not implement the
// structured slog.Handler attribute format; it exists purely to satisfy the
// plain-text job log line contract, independent from the console handler.
type lineHandler struct {
	w io.Writer
}

func (h *lineHandler) write(level slog.Level, msg string, attrs []slog.Attr) {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteString("] ")
	if level >= slog.LevelError {
		b.WriteString("[ERROR] ")
	}
	b.WriteString(msg)
	for _, a := range attrs {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
	}
	b.WriteString("\n")
	if _, err := io.WriteString(h.w, b.String()); err != nil {
		// Failure to write the log file never aborts the job.
		fmt.Fprintf(os.Stderr, "logger: failed to write job log: %v\n", err)
	}
}

// getLevelColor returns an ANSI color code for a log level.
func getLevelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(f *os.File) bool {
	if fi, err := f.Stat(); err == nil {
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// consoleHandler formats records for the console, colorizing level+message
// when writing to a terminal.
type consoleHandler struct {
	w        io.Writer
	useColor bool
}

func (h *consoleHandler) handle(r slog.Record) {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006/01/02 15:04:05 "))
	level := strings.ToUpper(r.Level.String())
	if level == "WARNING" {
		level = "WARN"
	}
	if h.useColor {
		b.WriteString(getLevelColor(r.Level))
		b.WriteString(level)
		b.WriteString("\033[0m")
	} else {
		b.WriteString(level)
	}
	b.WriteString(" ")
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	io.WriteString(h.w, b.String())
}

// fanoutHandler mirrors every record to a console handler and, when
// configured, a per-job line-oriented file handler.
type fanoutHandler struct {
	minLevel slog.Level
	console  *consoleHandler
	file     *lineHandler
	attrs    []slog.Attr // added by WithAttrs, rendered before each record's own
}

func (h *fanoutHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *fanoutHandler) Handle(_ context.Context, r slog.Record) error {
	if len(h.attrs) > 0 {
		nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		nr.AddAttrs(h.attrs...)
		r.Attrs(func(a slog.Attr) bool { nr.AddAttrs(a); return true })
		r = nr
	}
	h.console.handle(r)
	if h.file != nil {
		var attrs []slog.Attr
		r.Attrs(func(a slog.Attr) bool {
			attrs = append(attrs, a)
			return true
		})
		h.file.write(r.Level, r.Message, attrs)
	}
	return nil
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &nh
}
func (h *fanoutHandler) WithGroup(_ string) slog.Handler { return h }

// Options configures Init.
type Options struct {
	Level  slog.Level
	Output *os.File // console destination, defaults to os.Stderr
	// JobLogPath, when non-empty, mirrors every record to this file too.
	// The containing directory is created if missing. Failure to open or
	// write the file is logged to stderr and otherwise swallowed.
	JobLogPath string
}

// Init installs the process-wide logger and returns a cleanup func that
// closes the job log file, if one was opened.
func Init(opts Options) func() {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	h := &fanoutHandler{
		minLevel: opts.Level,
		console:  &consoleHandler{w: opts.Output, useColor: isTerminal(opts.Output)},
	}

	cleanup := func() {}

	if opts.JobLogPath != "" {
		if dir := filepath.Dir(opts.JobLogPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "logger: failed to create job log dir: %v\n", err)
			}
		}
		f, err := os.OpenFile(opts.JobLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: failed to open job log file: %v\n", err)
		} else {
			h.file = &lineHandler{w: f}
			cleanup = func() { f.Close() }
		}
	}

	defaultLogger = slog.New(h)
	slog.SetDefault(defaultLogger)
	return cleanup
}

// Get returns the process-wide logger, initializing a default (info level,
// stderr-only) one if Init has not been called yet.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init(Options{Level: slog.LevelInfo})
	}
	return defaultLogger
}

// Item returns a logger pre-tagged with the item's ID, so every line the
// worker emits through WorkerContext.Log carries it.
func Item(itemID string) *slog.Logger {
	return Get().With("item", itemID)
}
