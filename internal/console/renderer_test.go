package console

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/picodbg/internal/bus"
	"github.com/skobkin/picodbg/internal/connectors"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderLogSkipsClearOffTerminal(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, nil, testLogger())

	r.RenderLog(connectors.LogMessage{Text: "Starting...", Clear: true})
	r.RenderLog(connectors.LogMessage{Text: "hello"})

	if got := out.String(); got != "Starting...\nhello\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRenderLogClearsTerminal(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, nil, testLogger())
	r.tty = true

	r.RenderLog(connectors.LogMessage{Text: "Restarting in 2 seconds...", Clear: true})

	if got := out.String(); got != clearScreen+"Restarting in 2 seconds...\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRenderStateWritesToStatus(t *testing.T) {
	var out, status bytes.Buffer
	r := NewRenderer(&out, &status, testLogger())

	r.Render(connectors.StateChange{State: connectors.ConnectionStateRunning, Timestamp: time.Now()})
	r.Render(42)

	if got := status.String(); got != "[running]\n" {
		t.Fatalf("unexpected status output %q", got)
	}
	if out.Len() != 0 {
		t.Fatalf("state must not reach device output, got %q", out.String())
	}
}

func TestRendererFollowsBusInOrder(t *testing.T) {
	b := bus.New(testLogger(), 16)
	defer b.Close()

	out := &syncBuffer{}
	status := &syncBuffer{}
	r := NewRenderer(out, status, testLogger())
	stop := r.Start(b)
	defer stop()

	b.Publish(connectors.TopicSessionLog, connectors.LogMessage{Text: "Starting...", Clear: true})
	b.Publish(connectors.TopicSessionState, connectors.StateChange{State: connectors.ConnectionStateStarting})
	b.Publish(connectors.TopicSessionLog, connectors.LogMessage{Text: "Connected at 9600!"})
	b.Publish(connectors.TopicSessionLog, connectors.LogMessage{Text: "hello"})

	deadline := time.Now().Add(2 * time.Second)
	for !strings.HasSuffix(out.String(), "hello\n") {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for rendered output, got %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := out.String(); got != "Starting...\nConnected at 9600!\nhello\n" {
		t.Fatalf("unexpected output %q", got)
	}
	if got := status.String(); got != "[starting]\n" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestRendererStopIsIdempotent(t *testing.T) {
	b := bus.New(testLogger(), 4)
	defer b.Close()

	r := NewRenderer(io.Discard, io.Discard, testLogger())
	stop := r.Start(b)
	stop()
	stop()

	if noop := r.Start(nil); noop == nil {
		t.Fatalf("expected no-op stop for nil bus")
	}
}
