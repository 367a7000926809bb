package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/picodbg/internal/debugger"
	"github.com/skobkin/picodbg/internal/notifications"
	"github.com/skobkin/picodbg/internal/platform"
	"github.com/skobkin/picodbg/internal/transport"
)

func executeCommand(t *testing.T, root *cobra.Command, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut lockedBuffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func stubHost(t *testing.T, capability func() error, ports []transport.PortInfo) {
	t.Helper()
	origCapability, origEnumerate, origNotifier := detectCapability, enumeratePorts, notifier
	t.Cleanup(func() {
		detectCapability, enumeratePorts, notifier = origCapability, origEnumerate, origNotifier
	})
	detectCapability = capability
	notifier = notifications.SenderFunc(func(notifications.Payload) {})
	enumeratePorts = func() ([]transport.PortInfo, error) { return ports, nil }
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	if root.Use != "picodbg" {
		t.Fatalf("root.Use = %q, want picodbg", root.Use)
	}

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "ports", "forget", "version"} {
		if !names[want] {
			t.Fatalf("missing subcommand %q", want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := executeCommand(t, NewRootCommand(), nil, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "picodbg ") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestPortsCommandListsMatches(t *testing.T) {
	stubHost(t, func() error { return nil }, []transport.PortInfo{
		{Name: "/dev/ttyACM0", IsUSB: true, VID: 0x2E8A, PID: 0x000A, Product: "Pico"},
		{Name: "/dev/ttyS0"},
	})

	out, _, err := executeCommand(t, NewRootCommand(), nil, "ports", "--config-dir", t.TempDir())
	if err != nil {
		t.Fatalf("ports: %v", err)
	}
	if !strings.Contains(out, "PORT") || !strings.Contains(out, "/dev/ttyACM0 [2E8A:000A] Pico") {
		t.Fatalf("unexpected ports output %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two ports, got %q", out)
	}
	if !strings.Contains(lines[1], "yes") || !strings.Contains(lines[2], "no") {
		t.Fatalf("unexpected match columns %q", out)
	}
}

func TestPortsCommandWithoutPorts(t *testing.T) {
	stubHost(t, func() error { return nil }, nil)

	out, _, err := executeCommand(t, NewRootCommand(), nil, "ports", "--config-dir", t.TempDir())
	if err != nil {
		t.Fatalf("ports: %v", err)
	}
	if !strings.Contains(out, "No serial ports found.") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestForgetCommand(t *testing.T) {
	stubHost(t, func() error { return nil }, nil)
	dir := t.TempDir()

	out, _, err := executeCommand(t, NewRootCommand(), nil, "forget", "--config-dir", dir)
	if err != nil {
		t.Fatalf("forget: %v", err)
	}
	if !strings.Contains(out, "Forgot 0 port(s).") {
		t.Fatalf("unexpected output %q", out)
	}

	out, _, err = executeCommand(t, NewRootCommand(), nil, "forget", "/dev/ttyACM0", "--config-dir", dir)
	if err != nil {
		t.Fatalf("forget port: %v", err)
	}
	if !strings.Contains(out, "/dev/ttyACM0 was not authorized.") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunCommandWithoutSerialCapability(t *testing.T) {
	stubHost(t, func() error { return errors.New("no serial ports") }, nil)

	_, stderr, err := executeCommand(t, NewRootCommand(), strings.NewReader(""),
		"run", "--config-dir", t.TempDir(), "--log-level", "error")
	if !errors.Is(err, debugger.ErrCapabilityUnavailable) {
		t.Fatalf("expected capability error, got %v", err)
	}
	if !strings.Contains(stderr, runHelp) {
		t.Fatalf("expected command help on stderr, got %q", stderr)
	}
}

func TestRunCommandDeclinedPortEndsOnInputClose(t *testing.T) {
	stubHost(t, func() error { return nil }, []transport.PortInfo{
		{Name: "/dev/ttyACM0", IsUSB: true, VID: 0x2E8A, PID: 0x000A},
		{Name: "/dev/ttyACM1", IsUSB: true, VID: 0x2E8A, PID: 0x000A},
	})

	done := make(chan error, 1)
	go func() {
		_, _, err := executeCommand(t, NewRootCommand(), strings.NewReader(""),
			"run", "--config-dir", t.TempDir(), "--log-level", "error")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish after input closed")
	}
}

// lockedBuffer is written by the renderer goroutine and the port prompt at once.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingSession struct {
	mu       sync.Mutex
	restarts int
	exits    int
}

func (s *recordingSession) Restart(context.Context) *debugger.RestartTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	return nil
}

func (s *recordingSession) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exits++
}

func TestDispatchCommands(t *testing.T) {
	commands := make(chan string, 8)
	for _, line := range []string{"r", "", "Q", "help", "restart", "x", "q"} {
		commands <- line
	}

	session := &recordingSession{}
	left := false
	var errOut bytes.Buffer
	dispatchCommands(context.Background(), commands, session, func() { left = true }, &errOut)

	if session.restarts != 2 || session.exits != 1 {
		t.Fatalf("unexpected dispatch counts: restarts=%d exits=%d", session.restarts, session.exits)
	}
	if !left {
		t.Fatalf("expected leave to be called")
	}
	if !strings.Contains(errOut.String(), `Unknown command "help"`) {
		t.Fatalf("expected unknown command notice, got %q", errOut.String())
	}
}

func TestRunCommandRefusesSecondConsole(t *testing.T) {
	stubHost(t, func() error { return errors.New("no serial ports") }, nil)
	dir := t.TempDir()

	lock, err := platform.AcquireInstanceLock(dir, "picodbg")
	if err != nil {
		t.Skipf("instance lock unavailable: %v", err)
	}
	defer func() { _ = lock.Release() }()

	_, _, err = executeCommand(t, NewRootCommand(), strings.NewReader(""),
		"run", "--config-dir", dir, "--log-level", "error")
	if !errors.Is(err, platform.ErrInstanceAlreadyRunning) {
		t.Fatalf("expected instance lock error, got %v", err)
	}
}
