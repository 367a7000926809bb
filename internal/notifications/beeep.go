package notifications

import (
	"log/slog"
	"strings"

	"github.com/gen2brain/beeep"
)

// DesktopSender shows native desktop notifications.
type DesktopSender struct {
	appName string
	notify  func(title, message string) error
	logger  *slog.Logger
}

func NewDesktopSender(appName string, logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications")
	}
	if appName != "" {
		beeep.AppName = appName
	}

	return &DesktopSender{
		appName: appName,
		notify:  notifyDesktop,
		logger:  logger,
	}
}

func (s *DesktopSender) Send(payload Payload) {
	if s == nil || s.notify == nil {
		return
	}

	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if title == "" && content == "" {
		return
	}
	if title == "" {
		title = s.appName
	}

	if err := s.notify(title, content); err != nil {
		s.logger.Warn("desktop notification failed", "title", title, "error", err)
	}
}

func notifyDesktop(title, message string) error {
	return beeep.Notify(title, message, "")
}
