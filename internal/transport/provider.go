package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Grant is a remembered user authorization for a serial port.
type Grant struct {
	PortName     string
	VID          uint16
	PID          uint16
	SerialNumber string
	GrantedAt    time.Time
	LastUsedAt   time.Time
}

// Matches reports whether the grant covers the enumerated port.
// USB devices with a serial number are matched by identity so a renumbered tty keeps its grant.
func (g Grant) Matches(info PortInfo) bool {
	if g.SerialNumber != "" && info.IsUSB {
		return g.VID == info.VID && g.PID == info.PID && g.SerialNumber == info.SerialNumber
	}

	return g.PortName == info.Name
}

// GrantStore persists port authorizations. ListGrants returns the least recently used grant first.
type GrantStore interface {
	ListGrants(ctx context.Context) ([]Grant, error)
	SaveGrant(ctx context.Context, grant Grant) error
	TouchGrant(ctx context.Context, portName string, at time.Time) error
}

// Chooser asks the user to pick one of the candidate ports. ok=false means the user declined.
type Chooser interface {
	Choose(ctx context.Context, candidates []PortInfo) (PortInfo, bool, error)
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func(ctx context.Context, candidates []PortInfo) (PortInfo, bool, error)

func (f ChooserFunc) Choose(ctx context.Context, candidates []PortInfo) (PortInfo, bool, error) {
	return f(ctx, candidates)
}

// AutoChooser picks the only candidate without asking and defers to Next otherwise.
type AutoChooser struct {
	Next Chooser
}

func (c AutoChooser) Choose(ctx context.Context, candidates []PortInfo) (PortInfo, bool, error) {
	if len(candidates) == 1 {
		return candidates[0], true, nil
	}
	if c.Next == nil {
		return PortInfo{}, false, nil
	}

	return c.Next.Choose(ctx, candidates)
}

// EnumerateFunc lists the serial ports currently present on the host.
type EnumerateFunc func() ([]PortInfo, error)

// SerialPortProvider authorizes local serial ports and remembers the grants.
type SerialPortProvider struct {
	grants    GrantStore
	chooser   Chooser
	enumerate EnumerateFunc
	now       func() time.Time
	logger    *slog.Logger
}

func NewSerialPortProvider(grants GrantStore, chooser Chooser, logger *slog.Logger) *SerialPortProvider {
	if logger == nil {
		logger = slog.Default().With("component", "transport")
	}

	return &SerialPortProvider{
		grants:    grants,
		chooser:   chooser,
		enumerate: EnumeratePorts,
		now:       time.Now,
		logger:    logger,
	}
}

// WithEnumerator replaces the host port enumeration.
func (p *SerialPortProvider) WithEnumerator(fn EnumerateFunc) *SerialPortProvider {
	if fn != nil {
		p.enumerate = fn
	}

	return p
}

func (p *SerialPortProvider) ListAuthorized(ctx context.Context) ([]Link, error) {
	if p.grants == nil {
		return nil, nil
	}
	grants, err := p.grants.ListGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	if len(grants) == 0 {
		return nil, nil
	}

	present, err := p.enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	links := make([]Link, 0, len(grants))
	for _, grant := range grants {
		for _, info := range present {
			if !grant.Matches(info) {
				continue
			}
			if info.Name != grant.PortName {
				p.moveGrant(ctx, grant, info)
			}
			links = append(links, p.newLink(info))
			break
		}
	}
	p.logger.Debug("authorized ports", "grants", len(grants), "present", len(links))

	return links, nil
}

func (p *SerialPortProvider) RequestAuthorization(ctx context.Context, filter PortFilter) (Link, error) {
	present, err := p.enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	candidates := make([]PortInfo, 0, len(present))
	for _, info := range present {
		if filter.VendorID != 0 && !info.IsUSB {
			continue
		}
		if filter.Match(info) {
			candidates = append(candidates, info)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no ports match %s: %w", filter, ErrDeclined)
	}
	if p.chooser == nil {
		return nil, fmt.Errorf("no port chooser: %w", ErrDeclined)
	}

	chosen, ok, err := p.chooser.Choose(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("choose port: %w", err)
	}
	if !ok {
		return nil, ErrDeclined
	}

	if p.grants != nil {
		now := p.now()
		grant := Grant{
			PortName:     chosen.Name,
			VID:          chosen.VID,
			PID:          chosen.PID,
			SerialNumber: chosen.SerialNumber,
			GrantedAt:    now,
			LastUsedAt:   now,
		}
		if err := p.grants.SaveGrant(ctx, grant); err != nil {
			p.logger.Warn("save port grant", "port", chosen.Name, "error", err)
		}
	}
	p.logger.Info("port authorized", "port", chosen.Label())

	return p.newLink(chosen), nil
}

// moveGrant re-keys a grant whose device now shows up under another port name.
func (p *SerialPortProvider) moveGrant(ctx context.Context, grant Grant, info PortInfo) {
	moved := grant
	moved.PortName = info.Name
	if err := p.grants.SaveGrant(ctx, moved); err != nil {
		p.logger.Warn("move port grant", "from", grant.PortName, "to", info.Name, "error", err)
		return
	}
	p.logger.Info("port grant moved", "from", grant.PortName, "to", info.Name)
}

func (p *SerialPortProvider) newLink(info PortInfo) Link {
	return &grantedLink{SerialLink: NewSerialLink(info), provider: p}
}

// grantedLink refreshes the grant's last-used time whenever the port is opened.
type grantedLink struct {
	*SerialLink
	provider *SerialPortProvider
}

func (l *grantedLink) Open(baudRate int) error {
	if err := l.SerialLink.Open(baudRate); err != nil {
		return err
	}
	if l.provider.grants != nil {
		if err := l.provider.grants.TouchGrant(context.Background(), l.Name(), l.provider.now()); err != nil {
			l.provider.logger.Debug("touch port grant", "port", l.Name(), "error", err)
		}
	}

	return nil
}

// EnumeratePorts lists host serial ports with USB details where available.
func EnumeratePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		info := PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			SerialNumber: strings.TrimSpace(d.SerialNumber),
			Product:      strings.TrimSpace(d.Product),
		}
		if d.IsUSB {
			info.VID = parseUSBID(d.VID)
			info.PID = parseUSBID(d.PID)
		}
		out = append(out, info)
	}

	return out, nil
}

// DetectCapability reports whether the host exposes serial ports to this process.
func DetectCapability() error {
	if _, err := serial.GetPortsList(); err != nil {
		return fmt.Errorf("serial ports unavailable: %w", err)
	}

	return nil
}

// ParseVendorID accepts "2E8A", "0x2e8a" and similar hex spellings.
func ParseVendorID(raw string) (uint16, error) {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	if value == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(value, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parse vendor id %q: %w", raw, err)
	}

	// #nosec G115 -- ParseUint is limited to 16 bits above.
	return uint16(id), nil
}

func parseUSBID(raw string) uint16 {
	id, err := ParseVendorID(raw)
	if err != nil {
		return 0
	}

	return id
}

// IsDeclined reports whether err means no port was authorized.
func IsDeclined(err error) bool {
	return errors.Is(err, ErrDeclined)
}
