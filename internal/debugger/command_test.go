package debugger

import (
	"bytes"
	"errors"
	"testing"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestCommandBytes(t *testing.T) {
	if byte(CommandRestart) != 0x72 {
		t.Fatalf("restart byte must be 0x72, got %#x", byte(CommandRestart))
	}
	if byte(CommandQuit) != 0x71 {
		t.Fatalf("quit byte must be 0x71, got %#x", byte(CommandQuit))
	}
	if CommandRestart.String() != "restart" || CommandQuit.String() != "quit" {
		t.Fatalf("unexpected command names %q %q", CommandRestart, CommandQuit)
	}
	if got := Command('x').String(); got != "command(0x78)" {
		t.Fatalf("unexpected unknown command name %q", got)
	}
}

func TestCommandWriterSendsSingleByte(t *testing.T) {
	var buf bytes.Buffer
	w := NewCommandWriter()

	if err := w.Send(&buf, CommandRestart); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := w.Send(&buf, CommandQuit); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{'r', 'q'}) {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestCommandWriterErrors(t *testing.T) {
	w := NewCommandWriter()

	if err := w.Send(nil, CommandRestart); err == nil {
		t.Fatalf("expected error without link")
	}
	if err := w.Send(failingWriter{}, CommandQuit); err == nil {
		t.Fatalf("expected write error")
	}
	// The writer stays usable after a failed write.
	var buf bytes.Buffer
	if err := w.Send(&buf, CommandQuit); err != nil {
		t.Fatalf("send after failure: %v", err)
	}
}
