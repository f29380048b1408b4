package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogConfig selects the slog handler.
type LogConfig struct {
	// Format is "text" (default) or "json".
	Format string
	// Debug lowers the level to debug.
	Debug bool
}

// SetupLogging builds a logger writing to w, installs it as the slog default
// and returns it.
func SetupLogging(w io.Writer, config LogConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	if config.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (want text or json)", config.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
