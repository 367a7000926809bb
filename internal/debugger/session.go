package debugger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/picodbg/internal/connectors"
	"github.com/skobkin/picodbg/internal/notifications"
	"github.com/skobkin/picodbg/internal/transport"
)

const (
	DefaultBaudRate     = 9600
	DefaultVendorID     = 0x2E8A
	DefaultRestartDelay = 2 * time.Second

	msgStarting      = "Starting..."
	msgUnavailable   = "Serial communication is not supported on this host."
	titleUnavailable = "Serial unavailable"
)

// ErrCapabilityUnavailable is returned by Start when the host has no serial support.
var ErrCapabilityUnavailable = errors.New("serial capability unavailable")

// Options are the fixed link parameters of a session.
type Options struct {
	BaudRate     int
	Filter       transport.PortFilter
	RestartDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		BaudRate:     DefaultBaudRate,
		Filter:       transport.PortFilter{VendorID: DefaultVendorID},
		RestartDelay: DefaultRestartDelay,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BaudRate <= 0 {
		o.BaudRate = def.BaudRate
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = def.RestartDelay
	}

	return o
}

// Session runs connect-read-disconnect cycles against one device.
//
// Start owns the read loop and blocks until it ends. Restart and Exit write a
// single command byte to the open link and may be called from any goroutine
// while Start is blocked reading.
type Session struct {
	logger   *slog.Logger
	sink     Sink
	provider transport.PortProvider
	notifier notifications.Sender
	opts     Options

	states *StateMachine
	writer *CommandWriter

	// startMu is held from tearing down the previous loop until the new link is registered.
	startMu sync.Mutex

	mu             sync.Mutex
	pendingRestart *RestartTimer
	link           transport.Link
	reader         *LineReader
	loopDone       chan struct{}
}

// NewSession creates a session. A nil provider means the host has no serial capability.
func NewSession(logger *slog.Logger, sink Sink, provider transport.PortProvider, notifier notifications.Sender, opts Options) *Session {
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	if sink == nil {
		sink = SinkFuncs{}
	}

	return &Session{
		logger:   logger,
		sink:     sink,
		provider: provider,
		notifier: notifier,
		opts:     opts.withDefaults(),
		states:   NewStateMachine(sink),
		writer:   NewCommandWriter(),
	}
}

func (s *Session) State() connectors.ConnectionState {
	return s.states.Current()
}

// Start acquires a link and reads device output until the stream ends, the
// read fails or ctx is cancelled. A declined port selection returns nil.
func (s *Session) Start(ctx context.Context) error {
	if s.provider == nil {
		s.logger.Warn("serial capability unavailable")
		if s.notifier != nil {
			s.notifier.Send(notifications.Payload{Title: titleUnavailable, Content: msgUnavailable})
		}
		s.states.CapabilityMissing()
		return ErrCapabilityUnavailable
	}

	s.sink.PublishLog(connectors.LogMessage{Text: msgStarting, Clear: true})
	s.states.Starting()

	s.startMu.Lock()
	s.stopActiveLoop()

	link, err := s.acquireLink(ctx)
	if err != nil {
		s.startMu.Unlock()
		if transport.IsDeclined(err) {
			s.logger.Info("no port selected", "reason", err)
		} else {
			s.logger.Warn("port authorization failed", "error", err)
		}
		s.states.Declined()
		return nil
	}

	if err := link.Open(s.opts.BaudRate); err != nil {
		s.startMu.Unlock()
		s.logger.Error("open link failed", "port", link.Name(), "error", err)
		s.states.Failed()
		return fmt.Errorf("open %s: %w", link.Name(), err)
	}

	reader := NewLineReader(link)
	done := make(chan struct{})
	s.mu.Lock()
	s.link = link
	s.reader = reader
	s.loopDone = done
	s.mu.Unlock()
	s.startMu.Unlock()

	s.logger.Info("connected", "port", link.Name(), "baud", s.opts.BaudRate)
	s.sink.PublishLog(connectors.LogMessage{Text: fmt.Sprintf("Connected at %d!", s.opts.BaudRate)})
	s.states.Running()

	stopWatch := context.AfterFunc(ctx, func() {
		_ = link.Close()
	})
	s.readLoop(reader)
	stopWatch()

	s.release(link, reader, done)

	return nil
}

// Restart asks the device to reboot and schedules Start after the restart delay.
// A restart that has not fired yet is replaced. The returned timer may be ignored or stopped.
func (s *Session) Restart(ctx context.Context) *RestartTimer {
	s.states.Starting()
	if err := s.writer.Send(s.currentLink(), CommandRestart); err != nil {
		s.logger.Debug("restart command not delivered", "error", err)
	}
	s.sink.PublishLog(connectors.LogMessage{Text: restartNotice(s.opts.RestartDelay), Clear: true})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingRestart != nil && s.pendingRestart.Stop() {
		s.logger.Debug("replaced pending restart")
	}
	s.pendingRestart = scheduleRestart(s.opts.RestartDelay, func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Warn("scheduled start failed", "error", err)
		}
	})

	return s.pendingRestart
}

// Exit asks the device to leave its debug program.
func (s *Session) Exit() {
	s.states.Exiting()
	if err := s.writer.Send(s.currentLink(), CommandQuit); err != nil {
		s.logger.Debug("quit command not delivered", "error", err)
	}
}

// Wait blocks until the active read loop, if any, has been cleaned up.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) acquireLink(ctx context.Context) (transport.Link, error) {
	links, err := s.provider.ListAuthorized(ctx)
	if err != nil {
		s.logger.Warn("list authorized ports", "error", err)
	}
	if len(links) > 0 {
		// The most recently used grant is listed last.
		return links[len(links)-1], nil
	}

	return s.provider.RequestAuthorization(ctx, s.opts.Filter)
}

func (s *Session) readLoop(reader *LineReader) {
	for {
		res := reader.Next()
		if !res.Continue() {
			if res.Kind == ReadError {
				s.logger.Debug("read loop stopped", "error", res.Err)
			} else {
				s.logger.Debug("device stream ended")
			}
			return
		}
		s.sink.PublishLog(connectors.LogMessage{Text: res.Line})
	}
}

// release tears the loop down. Cleanup errors are expected after a disconnect and ignored.
func (s *Session) release(link transport.Link, reader *LineReader, done chan struct{}) {
	_ = reader.Cancel()
	_ = link.Close()

	s.mu.Lock()
	if s.link == link {
		s.link = nil
		s.reader = nil
		s.loopDone = nil
	}
	s.mu.Unlock()
	close(done)
}

// stopActiveLoop ends a read loop left over from a previous Start and waits for its cleanup.
func (s *Session) stopActiveLoop() {
	s.mu.Lock()
	link, reader, done := s.link, s.reader, s.loopDone
	s.mu.Unlock()
	if link == nil {
		return
	}

	s.logger.Debug("stopping previous read loop", "port", link.Name())
	_ = reader.Cancel()
	_ = link.Close()
	<-done
}

func (s *Session) currentLink() transport.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func restartNotice(delay time.Duration) string {
	if delay%time.Second == 0 {
		return fmt.Sprintf("Restarting in %d seconds...", int(delay/time.Second))
	}

	return fmt.Sprintf("Restarting in %s...", delay)
}
