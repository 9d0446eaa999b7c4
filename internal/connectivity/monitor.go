package connectivity

import (
	"context"
	"sync"
	"time"

	"mindcare-go/internal/offline"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultProbePath     = "/health"
)

// Pinger probes the backend. *api.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context, path string) error
}

// MonitorOptions configures a Monitor. Zero values take the defaults.
type MonitorOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	Path     string
}

// Monitor tracks backend reachability by probing it on an interval.
// It starts offline until the first successful probe.
type Monitor struct {
	pinger Pinger
	opts   MonitorOptions
	logger offline.Logger

	mu        sync.Mutex
	online    bool
	lastCheck time.Time
	listeners listeners
}

// NewMonitor creates a monitor. Call Check for a single probe or Run for the
// probe loop.
func NewMonitor(pinger Pinger, opts MonitorOptions, logger offline.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultProbeInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	if opts.Path == "" {
		opts.Path = DefaultProbePath
	}
	if logger == nil {
		logger = offline.NewNopLogger()
	}
	return &Monitor{pinger: pinger, opts: opts, logger: logger}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// LastCheck returns when the backend was last probed.
func (m *Monitor) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}

func (m *Monitor) OnOnline(fn func()) (cancel func()) { return m.listeners.add(fn) }

// Check probes the backend once, records the result and fires callbacks when
// the state flips to online.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	err := m.pinger.Ping(probeCtx, m.opts.Path)
	cancel()
	online := err == nil

	m.mu.Lock()
	was := m.online
	m.online = online
	m.lastCheck = time.Now()
	m.mu.Unlock()

	switch {
	case online && !was:
		m.logger.Info("backend reachable, switched to online mode")
		m.listeners.fire()
	case !online && was:
		m.logger.Warn("backend unreachable, switched to offline mode", "error", err)
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Compile-time check that Monitor implements offline.Connectivity interface
var _ offline.Connectivity = (*Monitor)(nil)
