package logsink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Agent severities.
const (
	LevelDebug     = slog.LevelDebug
	LevelInfo      = slog.LevelInfo
	LevelWarning   = slog.LevelWarn
	LevelException = slog.LevelError
	LevelCritical  = slog.LevelError + 4
)

// Options configures New.
type Options struct {
	// Level is shared with the config watcher so the level can change at runtime.
	Level *slog.LevelVar
	// Format is json or text.
	Format string
	// Output is stdout, stderr or syslog.
	Output string
	// Tag identifies the process in syslog output.
	Tag string
}

// ParseLevel converts a config level name to an slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "exception", "error":
		return LevelException, nil
	case "critical":
		return LevelCritical, nil
	}
	return LevelInfo, fmt.Errorf("logsink: unknown level %q", s)
}

// LevelName returns the agent's name for l.
func LevelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= LevelException:
		return "EXCEPTION"
	case l >= LevelWarning:
		return "WARNING"
	case l >= LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// New builds a logger for opts. The returned closer releases the output
// (a no-op for stdout and stderr).
func New(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Level == nil {
		opts.Level = new(slog.LevelVar)
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch opts.Output {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "syslog":
		sw, err := dialSyslog(opts.Tag)
		if err != nil {
			return nil, nil, fmt.Errorf("logsink: open syslog: %w", err)
		}
		w, closer = sw, sw
	default:
		return nil, nil, fmt.Errorf("logsink: unknown output %q", opts.Output)
	}

	hopts := &slog.HandlerOptions{Level: opts.Level, ReplaceAttr: replaceLevel}
	var h slog.Handler
	switch opts.Format {
	case "json", "":
		h = slog.NewJSONHandler(w, hopts)
	case "text":
		h = slog.NewTextHandler(w, hopts)
	default:
		return nil, nil, fmt.Errorf("logsink: unknown format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

// For returns a child logger tagged with the component name.
func For(logger *slog.Logger, source string) *slog.Logger {
	return logger.With("source", source)
}

// Exception logs msg at EXCEPTION severity.
func Exception(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelException, msg, args...)
}

// Critical logs msg at CRITICAL severity.
func Critical(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelCritical, msg, args...)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(l))
		}
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
