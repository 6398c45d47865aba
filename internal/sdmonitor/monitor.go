package sdmonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"nxinfo/internal/logging"
)

// ErrNotMounted means an attached partition never appeared in the mount
// table within the settle timeout.
var ErrNotMounted = errors.New("partition not mounted")

// Handler is called with the mount point of every attached card. Calls are
// sequential.
type Handler func(ctx context.Context, mount Mount) error

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMountTable overrides the mount table path.
func WithMountTable(path string) Option {
	return func(m *Monitor) {
		if path != "" {
			m.mountTable = path
		}
	}
}

// WithSettle sets how long to wait for an attached partition to be mounted
// and how often to poll the mount table meanwhile.
func WithSettle(timeout, interval time.Duration) Option {
	return func(m *Monitor) {
		if timeout > 0 {
			m.settleTimeout = timeout
		}
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// Monitor listens for udev netlink events and runs the handler when a card
// partition is attached and mounted.
type Monitor struct {
	logger        *slog.Logger
	handler       Handler
	mountTable    string
	settleTimeout time.Duration
	pollInterval  time.Duration

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// New creates a monitor. It does not listen until Start is called.
func New(handler Handler, opts ...Option) *Monitor {
	m := &Monitor{
		logger:        logging.NewNop(),
		handler:       handler,
		mountTable:    DefaultMountTable,
		settleTimeout: 10 * time.Second,
		pollInterval:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "sd-monitor")
	return m
}

// Start begins listening for udev netlink events.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect netlink socket: %w", err)
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	quit, done := m.quit, m.done
	go m.monitorLoop(ctx, conn, quit, done)

	m.logger.Info("sd monitor started",
		logging.String(logging.FieldEventType, "sd_monitor_started"),
		logging.String("mount_table", m.mountTable),
	)
	return nil
}

// Stop shuts down the monitor and waits for an in-flight handler to return.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	done := m.done
	m.quit, m.done = nil, nil
	m.running = false
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	m.logger.Info("sd monitor stopped",
		logging.String(logging.FieldEventType, "sd_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Run starts the monitor and blocks until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "sd_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "card detection may be affected"),
			)
		}
	}
}

// buildMatcher matches partitions being added to the block subsystem.
func buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	m.logger.Info("partition attached",
		logging.String(logging.FieldEventType, "sd_partition_attached"),
		logging.String("device", devname),
	)

	mount, err := m.waitForMount(ctx, devname)
	if err != nil {
		logging.WarnWithContext(m.logger, "attached partition not scanned", "sd_mount_missing",
			logging.Error(err),
			logging.String("device", devname),
			logging.String(logging.FieldErrorHint, "mount the card or enable automounting"),
			logging.String(logging.FieldImpact, "card not scanned"),
		)
		return
	}

	if m.handler == nil {
		return
	}
	if err := m.handler(ctx, mount); err != nil {
		logging.ErrorWithContext(m.logger, "card handler failed", "sd_handler_failed",
			logging.Error(err),
			logging.String("device", devname),
			logging.String("mount", mount.Path),
			logging.String(logging.FieldImpact, "card not scanned"),
		)
		return
	}
	m.logger.Info("card processed",
		logging.String(logging.FieldEventType, "sd_card_processed"),
		logging.String("device", devname),
		logging.String("mount", mount.Path),
	)
}

// waitForMount polls the mount table until device shows up.
func (m *Monitor) waitForMount(ctx context.Context, device string) (Mount, error) {
	deadline := time.NewTimer(m.settleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		mounts, err := ReadMounts(m.mountTable)
		if err != nil {
			return Mount{}, err
		}
		if mount, ok := FindMount(mounts, device); ok {
			return mount, nil
		}
		select {
		case <-ctx.Done():
			return Mount{}, ctx.Err()
		case <-deadline.C:
			return Mount{}, fmt.Errorf("%w: %s", ErrNotMounted, device)
		case <-ticker.C:
		}
	}
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
