package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/picodbg/internal/bus"
	"github.com/skobkin/picodbg/internal/config"
	"github.com/skobkin/picodbg/internal/debugger"
	"github.com/skobkin/picodbg/internal/logging"
	"github.com/skobkin/picodbg/internal/notifications"
	"github.com/skobkin/picodbg/internal/persistence"
	"github.com/skobkin/picodbg/internal/transport"
)

const writerFlushTimeout = 2 * time.Second

// Overrides are command line values applied on top of the config file.
type Overrides struct {
	ConfigDir    string
	VendorID     string
	BaudRate     int
	RestartDelay string
	AutoSelect   bool
	LogLevel     string
}

func (o Overrides) apply(cfg *config.AppConfig) {
	if v := strings.TrimSpace(o.VendorID); v != "" {
		cfg.Serial.VendorID = v
	}
	if o.BaudRate > 0 {
		cfg.Serial.BaudRate = o.BaudRate
	}
	if v := strings.TrimSpace(o.RestartDelay); v != "" {
		cfg.Serial.RestartDelay = v
	}
	if o.AutoSelect {
		cfg.Serial.AutoSelect = true
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

// Options wires the runtime to the process terminal.
type Options struct {
	Overrides Overrides
	// Input answers port prompts. Nil means ports can only be chosen automatically.
	Input *Input
	// PromptOut receives port prompts.
	PromptOut io.Writer
	// Capability reports whether the host can talk to serial ports at all.
	Capability func() error
	// Enumerate overrides host port enumeration.
	Enumerate transport.EnumerateFunc
	// Notifier overrides the desktop notifier.
	Notifier notifications.Sender
	// LogOutput overrides the console log destination.
	LogOutput io.Writer
}

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager  *logging.Manager
	Bus         *bus.PubSubBus
	DB          *sql.DB
	Grants      *persistence.GrantRepo
	WriterQueue *persistence.WriterQueue

	Provider      *transport.SerialPortProvider
	Notifier      notifications.Sender
	Notifications *NotificationService
	Session       *debugger.Session
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := resolveRuntimePaths(opts.Overrides.ConfigDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	opts.Overrides.apply(&cfg)
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if opts.LogOutput != nil {
		logMgr = logging.NewManagerWithOutput(opts.LogOutput)
	}
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting picodbg runtime", "version", BuildVersion(), "build_date", BuildDateYMD(), "log_level", logMgr.Level())

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = db
	rt.Grants = persistence.NewGrantRepo(db)

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), 64)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue

	b := bus.New(logMgr.Logger("bus"), bus.DefaultCapacity)
	rt.Bus = b

	rt.Notifier = opts.Notifier
	if rt.Notifier == nil {
		rt.Notifier = notifications.NewDesktopSender(Name, logMgr.Logger("notifications"))
	}
	rt.Notifications = NewNotificationService(b, rt.CurrentConfig, rt.Notifier, logMgr.Logger("app.notifications"))
	rt.Notifications.Start(ctx)

	capability := opts.Capability
	if capability == nil {
		capability = transport.DetectCapability
	}
	var provider transport.PortProvider
	if err := capability(); err != nil {
		logMgr.Logger("transport").Warn("serial ports unavailable", "error", err)
	} else {
		rt.Provider = transport.NewSerialPortProvider(
			persistence.NewQueuedGrantStore(rt.Grants, writerQueue),
			newChooser(cfg.Serial, opts),
			logMgr.Logger("transport"),
		).WithEnumerator(opts.Enumerate)
		provider = rt.Provider
	}

	sessionOpts, err := SessionOptions(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	var sessionNotifier notifications.Sender
	if cfg.Notifications.Enabled {
		sessionNotifier = rt.Notifier
	}
	rt.Session = debugger.NewSession(
		logMgr.Logger("session"),
		debugger.NewBusSink(b),
		provider,
		sessionNotifier,
		sessionOpts,
	)

	return rt, nil
}

func resolveRuntimePaths(dir string) (Paths, error) {
	if strings.TrimSpace(dir) != "" {
		return PathsIn(dir)
	}

	return ResolvePaths()
}

func newChooser(cfg config.SerialConfig, opts Options) transport.Chooser {
	var next transport.Chooser
	if opts.Input != nil {
		out := opts.PromptOut
		if out == nil {
			out = io.Discard
		}
		next = NewPortPrompt(opts.Input, out)
	}
	if cfg.AutoSelect || next == nil {
		return transport.AutoChooser{Next: next}
	}

	return next
}

// SessionOptions converts the serial config into debugger session options.
func SessionOptions(cfg config.AppConfig) (debugger.Options, error) {
	vid, err := cfg.Serial.ParsedVendorID()
	if err != nil {
		return debugger.Options{}, err
	}
	delay, err := cfg.Serial.ParsedRestartDelay()
	if err != nil {
		return debugger.Options{}, err
	}

	return debugger.Options{
		BaudRate:     cfg.Serial.BaudRate,
		Filter:       transport.PortFilter{VendorID: vid},
		RestartDelay: delay,
	}, nil
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

// PortStatus is a present serial port and whether it is already authorized.
type PortStatus struct {
	Info       transport.PortInfo
	Authorized bool
	Matches    bool
}

// ListPorts enumerates host ports and marks remembered and vendor-matching ones.
func (r *Runtime) ListPorts(ctx context.Context, enumerate transport.EnumerateFunc) ([]PortStatus, error) {
	if enumerate == nil {
		enumerate = transport.EnumeratePorts
	}
	ports, err := enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	grants, err := r.Grants.ListGrants(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := SessionOptions(r.CurrentConfig())
	if err != nil {
		return nil, err
	}

	out := make([]PortStatus, 0, len(ports))
	for _, p := range ports {
		status := PortStatus{Info: p, Matches: opts.Filter.Match(p)}
		for _, g := range grants {
			if g.Matches(p) {
				status.Authorized = true
				break
			}
		}
		out = append(out, status)
	}

	return out, nil
}

// ForgetPort removes one remembered authorization, or all of them when portName is empty.
func (r *Runtime) ForgetPort(ctx context.Context, portName string) (int, error) {
	portName = strings.TrimSpace(portName)
	if portName == "" {
		removed, err := persistence.ClearGrants(ctx, r.DB)
		if err != nil {
			return 0, err
		}
		slog.Info("forgot all port grants", "count", removed)
		return removed, nil
	}

	deleted, err := r.Grants.DeleteGrant(ctx, portName)
	if err != nil {
		return 0, err
	}
	if !deleted {
		return 0, nil
	}
	slog.Info("forgot port grant", "port", portName)

	return 1, nil
}

func (r *Runtime) Close() error {
	if r.WriterQueue != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), writerFlushTimeout)
		r.WriterQueue.Flush(flushCtx)
		cancel()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.Session != nil {
		r.Session.Wait()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	return nil
}
