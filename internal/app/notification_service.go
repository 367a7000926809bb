package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/picodbg/internal/bus"
	"github.com/skobkin/picodbg/internal/config"
	"github.com/skobkin/picodbg/internal/connectors"
	"github.com/skobkin/picodbg/internal/notifications"
)

const (
	notificationTitleConnected = "Debugger connected"
	notificationTitleExited    = "Debug program exited"
)

// NotificationService turns session state changes into desktop notifications.
// Only the edges a user cares about away from the terminal are reported:
// a link coming up after a start and the device leaving a running session.
type NotificationService struct {
	bus           bus.MessageBus
	currentConfig func() config.AppConfig
	sender        notifications.Sender
	logger        *slog.Logger

	mu           sync.Mutex
	lastState    connectors.ConnectionState
	lastStateSet bool
}

func NewNotificationService(
	messageBus bus.MessageBus,
	currentConfig func() config.AppConfig,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:           messageBus,
		currentConfig: currentConfig,
		sender:        sender,
		logger:        logger,
	}
}

func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	stateSub := s.bus.Subscribe(connectors.TopicSessionState)

	go func() {
		defer s.bus.Unsubscribe(stateSub, connectors.TopicSessionState)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-stateSub:
				if !ok {
					return
				}
				change, ok := raw.(connectors.StateChange)
				if !ok {
					continue
				}
				s.handleStateChange(change.State)
			}
		}
	}()
}

func (s *NotificationService) handleStateChange(state connectors.ConnectionState) {
	s.mu.Lock()
	prev, hadPrev := s.lastState, s.lastStateSet
	s.lastState = state
	s.lastStateSet = true
	s.mu.Unlock()

	if !hadPrev || prev == state {
		return
	}
	if !s.enabled() {
		return
	}

	switch {
	case prev == connectors.ConnectionStateStarting && state == connectors.ConnectionStateRunning:
		s.send(notifications.Payload{Title: notificationTitleConnected, Content: "Reading device output."})
	case prev == connectors.ConnectionStateRunning && state == connectors.ConnectionStateUnavailable:
		s.send(notifications.Payload{Title: notificationTitleExited, Content: "The device left debug mode."})
	}
}

func (s *NotificationService) enabled() bool {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
	}

	return cfg.Notifications.Enabled
}

func (s *NotificationService) send(notification notifications.Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(notifications.Payload{
		Title:   title,
		Content: content,
	})
}
