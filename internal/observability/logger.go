// Package observability carries the daemon's ambient stack: structured
// logging, Prometheus metrics, and the read-only HTTP introspection
// surface.
package observability

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a slog.Logger writing to stdout, in either "json" or
// "text" format, at the given minimum level.
func NewLogger(format, level string) (*slog.Logger, error) {
	ho := &slog.HandlerOptions{}
	switch strings.ToLower(level) {
	case "debug":
		ho.Level = slog.LevelDebug
	case "info", "":
		ho.Level = slog.LevelInfo
	case "warn":
		ho.Level = slog.LevelWarn
	case "error":
		ho.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, ho)
	case "text", "":
		handler = slog.NewTextHandler(os.Stdout, ho)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	return slog.New(handler), nil
}
