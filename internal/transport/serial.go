package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// SerialLink is a Link backed by a local serial device.
type SerialLink struct {
	portName string
	info     PortInfo

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialLink(info PortInfo) *SerialLink {
	return &SerialLink{
		portName: info.Name,
		info:     info,
	}
}

func (l *SerialLink) Name() string {
	return l.portName
}

func (l *SerialLink) Open(baudRate int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port != nil {
		return nil
	}
	if l.portName == "" {
		return errors.New("serial port is empty")
	}
	if baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", baudRate)
	}

	port, err := serial.Open(l.portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return fmt.Errorf("open serial port %q: %w", l.portName, err)
	}
	l.port = port
	linkLogger(l.info).Debug("serial port opened", "baud", baudRate)

	return nil
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	linkLogger(l.info).Debug("serial port closed", "error", err)
	return err
}

// Read blocks until data arrives, the device goes away or the link is closed.
// A zero-length read without error means the device hung up and is reported as io.EOF.
func (l *SerialLink) Read(p []byte) (int, error) {
	port, err := l.currentPort()
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := port.Read(p)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			return n, io.EOF
		}
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	return n, nil
}

func (l *SerialLink) Write(p []byte) (int, error) {
	port, err := l.currentPort()
	if err != nil {
		return 0, err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	written, err := writeFull(port, p)
	if err != nil {
		return written, fmt.Errorf("write serial: %w", err)
	}
	return written, nil
}

func (l *SerialLink) currentPort() (serial.Port, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil, ErrNotOpen
	}
	return l.port, nil
}

func writeFull(w io.Writer, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
		written += n
	}
	return written, nil
}
