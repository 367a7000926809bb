package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDeclined is returned when no port was authorized for the session.
	ErrDeclined = errors.New("port selection declined")
	// ErrNotOpen is returned by link operations before Open or after Close.
	ErrNotOpen = errors.New("link is not open")
)

// Link is an open duplex byte channel to the device.
// Read and Write may be called concurrently; Close unblocks a pending Read.
type Link interface {
	Name() string
	Open(baudRate int) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// PortProvider hands out links the user has authorized.
type PortProvider interface {
	ListAuthorized(ctx context.Context) ([]Link, error)
	RequestAuthorization(ctx context.Context, filter PortFilter) (Link, error)
}

// PortFilter narrows authorization requests to one USB vendor. Zero matches any USB port.
type PortFilter struct {
	VendorID uint16
}

func (f PortFilter) Match(info PortInfo) bool {
	if f.VendorID == 0 {
		return true
	}

	return info.VID == f.VendorID
}

func (f PortFilter) String() string {
	if f.VendorID == 0 {
		return "any"
	}

	return fmt.Sprintf("vid=%04X", f.VendorID)
}

// PortInfo describes an enumerated serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          uint16
	PID          uint16
	SerialNumber string
	Product      string
}

func (p PortInfo) Label() string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.IsUSB {
		fmt.Fprintf(&b, " [%04X:%04X]", p.VID, p.PID)
	}
	if product := strings.TrimSpace(p.Product); product != "" {
		b.WriteString(" ")
		b.WriteString(product)
	}

	return b.String()
}
