// Package logging wires slog up with console plus file output and a few
// handler combinators shared across the ground link.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogFilePath builds a session log file path using OS-appropriate separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Manager owns the process logger and its file sink.
type Manager struct {
	logger *slog.Logger
	file   io.WriteCloser
}

// NewManager creates an unconfigured logging manager.
func NewManager() *Manager {
	return &Manager{}
}

// Setup initializes logging with console and file output. The provider, when
// not nil, stamps dynamic context attributes onto every record.
func (m *Manager) Setup(level, logsDir, appName string, provider ContextProvider) error {
	lvl := parseLevel(level)

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stdout, handlerOpts),
	}

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("creating logs dir: %w", err)
		}
		f, err := os.OpenFile(
			LogFilePath(logsDir, appName, time.Now()),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644,
		)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		m.file = f
		handlers = append(handlers, slog.NewTextHandler(f, handlerOpts))
	}

	m.logger = slog.New(withLiveAttrs(newTeeHandler(handlers...), provider))
	m.logger.Info("Logging initialized", "level", level)
	return nil
}

// Logger returns the configured slog.Logger, or the default logger when
// Setup has not run.
func (m *Manager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Close releases the file sink if one was opened.
func (m *Manager) Close() error {
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}
