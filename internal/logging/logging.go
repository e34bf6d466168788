package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// New returns a slog.Logger backed by a charmbracelet logger writing to w.
// format is "text" or "json"; level is a level name such as "debug".
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
	}
	if format == "json" {
		opts.Formatter = log.JSONFormatter
	}
	return slog.New(log.NewWithOptions(w, opts)), nil
}

// Setup installs a logger as the slog default. verbose > 0 forces debug.
func Setup(w io.Writer, format, level string, verbose int) error {
	if verbose > 0 {
		level = "debug"
	}
	l, err := New(w, format, level)
	if err != nil {
		return err
	}
	slog.SetDefault(l)
	return nil
}
