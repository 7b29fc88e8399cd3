package observe

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Instrument installs the process-wide slog logger on stdout.
func Instrument(level slog.Level, logFormat string) error {
	return instrument(os.Stdout, level, logFormat)
}

func instrument(w io.Writer, level slog.Level, logFormat string) error {
	handler, err := newHandler(w, level, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(newTraceContextHandler(handler)))
	return nil
}

func newHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(logFormat) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text", "":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}
}

// ParseLevel maps a configured level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q: %w", name, err)
	}
	return level, nil
}
