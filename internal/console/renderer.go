package console

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/skobkin/picodbg/internal/bus"
	"github.com/skobkin/picodbg/internal/connectors"
)

// clearScreen moves the cursor home and erases the display.
const clearScreen = "\x1b[H\x1b[2J"

// Renderer prints session events: device lines to out, state changes to status.
type Renderer struct {
	out    io.Writer
	status io.Writer
	tty    bool
	logger *slog.Logger

	mu sync.Mutex
}

func NewRenderer(out, status io.Writer, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default().With("component", "console")
	}
	if out == nil {
		out = io.Discard
	}
	if status == nil {
		status = io.Discard
	}

	return &Renderer{
		out:    out,
		status: status,
		tty:    isTerminal(out),
		logger: logger,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start renders bus events until the returned stop function is called or the bus closes.
// Both topics share one subscription so lines and states keep their publish order.
func (r *Renderer) Start(messageBus bus.MessageBus) (stop func()) {
	if messageBus == nil {
		r.logger.Debug("skipping console renderer: message bus is nil")

		return func() {}
	}

	sub := messageBus.Subscribe(connectors.TopicSessionState, connectors.TopicSessionLog)
	done := make(chan struct{})
	finished := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			case raw, ok := <-sub:
				if !ok {
					r.logger.Debug("console subscription closed")

					return
				}
				r.Render(raw)
			}
		}
	}()

	return func() {
		stopOnce.Do(func() {
			close(done)
			<-finished
			messageBus.Unsubscribe(sub)
		})
	}
}

// Render prints one bus payload. Unknown payloads are ignored.
func (r *Renderer) Render(raw any) {
	switch msg := raw.(type) {
	case connectors.LogMessage:
		r.RenderLog(msg)
	case connectors.StateChange:
		r.RenderState(msg.State)
	default:
		r.logger.Debug("ignoring unexpected payload", "payload_type", fmt.Sprintf("%T", raw))
	}
}

func (r *Renderer) RenderLog(msg connectors.LogMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.Clear && r.tty {
		_, _ = io.WriteString(r.out, clearScreen)
	}
	if _, err := fmt.Fprintln(r.out, msg.Text); err != nil {
		r.logger.Debug("write device line failed", "error", err)
	}
}

func (r *Renderer) RenderState(state connectors.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := fmt.Fprintf(r.status, "[%s]\n", state); err != nil {
		r.logger.Debug("write state failed", "error", err)
	}
}
