package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gpimon/internal/infra/config"
)

// New creates the daemon's *slog.Logger. Debug level also records the
// source position of each record. When the unit's stdio is connected to the
// journal, records carry no timestamp of their own.
// The returned closer function should be deferred to flush/close file handles.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if underJournal(cfg.Output) {
		opts.ReplaceAttr = dropTime
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler).With("service", "gpimon"), closer, nil
}

// parseLevel converts a string level to slog.Level. Unknown levels mean info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// openOutput returns an io.Writer for the specified output target.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}

// underJournal reports whether output goes to a stream systemd connected to
// the journal.
func underJournal(output string) bool {
	switch strings.ToLower(output) {
	case "stdout", "stderr", "":
		return os.Getenv("JOURNAL_STREAM") != ""
	}
	return false
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
