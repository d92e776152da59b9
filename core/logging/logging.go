package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

var level = new(slog.LevelVar)

// Configure builds the process logger from the SCIE_JUMP_LOG level filter and
// an optional SCIE_JUMP_LOG_FILE JSON sink, and installs it as the slog
// default. The returned closer flushes the file sink when one is open.
func Configure() io.Closer {
	level.Set(parseLevel(os.Getenv("SCIE_JUMP_LOG")))

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	var closer io.Closer
	if logPath := strings.TrimSpace(os.Getenv("SCIE_JUMP_LOG_FILE")); logPath != "" {
		// #nosec G304 -- the log destination is chosen by the user via environment variable.
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			slog.New(handlers[0]).Warn("open log file", "path", logPath, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))
			closer = logFile
		}
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	if closer == nil {
		return io.NopCloser(nil)
	}
	return closer
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
