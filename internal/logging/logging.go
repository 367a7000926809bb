package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skobkin/picodbg/internal/config"
)

// Manager owns the console logger and the optional session log file.
// Console diagnostics go to stderr so they never interleave with device output on stdout.
// The log file always records debug detail, whatever the console level.
type Manager struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	file    *os.File
	console io.Writer
	level   slog.Level
}

func NewManager() *Manager {
	return NewManagerWithOutput(os.Stderr)
}

// NewManagerWithOutput creates a manager whose console logs go to w.
func NewManagerWithOutput(w io.Writer) *Manager {
	if w == nil {
		w = io.Discard
	}

	return &Manager{
		console: w,
		level:   slog.LevelInfo,
		logger:  slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeFileLocked(); err != nil {
		return fmt.Errorf("close previous log file: %w", err)
	}
	m.level = level

	var handler slog.Handler = slog.NewTextHandler(m.console, &slog.HandlerOptions{Level: level})
	if cfg.LogToFile {
		cleanPath := filepath.Clean(filePath)
		// #nosec G304 -- path is resolved by the runtime inside the user config dir.
		file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		m.file = file
		handler = teeHandler{handler, slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})}
	}

	m.logger = slog.New(handler)
	slog.SetDefault(m.logger)

	return nil
}

func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logger.With("component", component)
}

// Level is the console threshold.
func (m *Manager) Level() slog.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.level
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeFileLocked()
}

func (m *Manager) closeFileLocked() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil

	return err
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %q", raw)
	}
}

// teeHandler hands each record to every handler that accepts its level.
// A failing handler does not stop the others; Handle fails only when all of them did.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var (
		handled int
		errs    []error
	)
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
			continue
		}
		handled++
	}
	if handled == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}

	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}

	return out
}
