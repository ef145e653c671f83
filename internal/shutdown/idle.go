// Package shutdown signals when the server has gone idle so a scale-to-zero
// platform can stop the machine.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyFunc reports whether background work is running.
type BusyFunc func() bool

// Config holds idle monitor configuration. A zero Timeout disables it.
type Config struct {
	Timeout       time.Duration
	CheckInterval time.Duration // defaults to Timeout/6 clamped to [5s, 30s]
	ExcludePaths  []string      // prefixes that do not count as activity, e.g. probes
	Busy          BusyFunc
	Logger        *slog.Logger
}

// IdleMonitor tracks request activity and closes Done once nothing has
// happened for Timeout.
type IdleMonitor struct {
	cfg          Config
	active       atomic.Int64
	lastActivity atomic.Int64 // unix nanos
	done         chan struct{}
	stop         chan struct{}
	stopOnce     sync.Once
	now          func() time.Time
}

// NewIdleMonitor creates a new idle monitor.
func NewIdleMonitor(cfg Config) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = min(max(cfg.Timeout/6, 5*time.Second), 30*time.Second)
	}
	m := &IdleMonitor{
		cfg:  cfg,
		done: make(chan struct{}),
		stop: make(chan struct{}),
		now:  time.Now,
	}
	m.touch()
	return m
}

// Enabled reports whether the monitor will ever fire.
func (m *IdleMonitor) Enabled() bool {
	return m.cfg.Timeout > 0
}

// Start begins monitoring.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		m.cfg.Logger.Debug("idle shutdown disabled")
		return
	}
	m.cfg.Logger.Info("idle shutdown enabled", "timeout", m.cfg.Timeout, "exclude_paths", m.cfg.ExcludePaths)
	go m.run()
}

// Stop ends monitoring without firing Done.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when the idle timeout is reached.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Middleware counts in-flight requests as activity.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.active.Add(1)
		m.touch()
		defer func() {
			m.active.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, p := range m.cfg.ExcludePaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.lastActivity.Store(m.now().UnixNano())
}

func (m *IdleMonitor) idleFor() time.Duration {
	return m.now().Sub(time.Unix(0, m.lastActivity.Load()))
}

func (m *IdleMonitor) run() {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.check() {
				close(m.done)
				return
			}
		}
	}
}

// check reports whether the server is idle. Running requests or background
// work restart the idle period.
func (m *IdleMonitor) check() bool {
	busy := m.cfg.Busy != nil && m.cfg.Busy()
	if m.active.Load() > 0 || busy {
		m.touch()
		return false
	}
	idle := m.idleFor()
	if idle < m.cfg.Timeout {
		return false
	}
	m.cfg.Logger.Info("idle timeout reached, signalling shutdown", "idle_time", idle, "timeout", m.cfg.Timeout)
	return true
}
