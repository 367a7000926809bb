package debugger

import (
	"fmt"
	"io"
	"sync"
)

// Command is a single control byte understood by the device firmware.
type Command byte

const (
	CommandRestart Command = 'r'
	CommandQuit    Command = 'q'
)

func (c Command) String() string {
	switch c {
	case CommandRestart:
		return "restart"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("command(0x%02x)", byte(c))
	}
}

// CommandWriter serialises command writes onto a link.
type CommandWriter struct {
	mu sync.Mutex
}

func NewCommandWriter() *CommandWriter {
	return &CommandWriter{}
}

// Send writes the command byte. The lock is released before returning, whatever the outcome.
func (w *CommandWriter) Send(dst io.Writer, cmd Command) error {
	if dst == nil {
		return fmt.Errorf("send %s: no open link", cmd)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := dst.Write([]byte{byte(cmd)}); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}
