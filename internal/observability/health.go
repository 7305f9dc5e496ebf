package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is the health state of a single component or of the system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes one component and reports its health.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is the result of a single component probe.
type ComponentHealth struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	LastChecked time.Time `json:"last_checked"`
	LatencyMs   int64     `json:"latency_ms"`
}

// SystemHealth aggregates all component probes. Status is the worst
// component status observed.
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	UptimeSec  int64                      `json:"uptime_seconds"`
}

// Alert is emitted when a component changes status.
type Alert struct {
	Level     string    `json:"level"` // info|warn|critical
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// Pinger is anything with a context-aware liveness probe. The RPC client,
// the Redis seen-store and the ClickHouse client all satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a bare probe function to the Pinger interface.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// checkTimeout bounds a single probe so one slow dependency cannot
// stall the whole sweep.
const checkTimeout = 5 * time.Second

// degradedLatency marks a probe degraded even when it succeeds.
const degradedLatency = 2 * time.Second

// PingCheck wraps a Pinger as a Check. A failed ping is unhealthy,
// a slow ping is degraded.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) ComponentHealth {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		start := time.Now()
		err := p.Ping(cctx)
		elapsed := time.Since(start)

		if err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		if elapsed > degradedLatency {
			return ComponentHealth{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("slow ping: %s", elapsed.Round(time.Millisecond)),
			}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// StalenessCheck reports on a feed by the age of its last event.
// lastEvent must return the zero time until the first event arrives.
func StalenessCheck(lastEvent func() time.Time, maxAge time.Duration) Check {
	return func(ctx context.Context) ComponentHealth {
		last := lastEvent()
		if last.IsZero() {
			return ComponentHealth{Status: StatusDegraded, Message: "no events yet"}
		}
		age := time.Since(last)
		if age > maxAge {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("last event %s ago", age.Round(time.Second)),
			}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// ------------------------------------------------------------- Monitor ---

// HealthMonitor runs registered checks on an interval and keeps the
// latest result per component. Check can also be invoked on demand,
// which is what the HTTP health endpoint does.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    map[string]Check
	results   map[string]ComponentHealth
	startTime time.Time
	interval  time.Duration
	alertCh   chan Alert
	stopCh    chan struct{}
	stopped   sync.Once
}

func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		checks:    make(map[string]Check),
		results:   make(map[string]ComponentHealth),
		startTime: time.Now(),
		interval:  interval,
		alertCh:   make(chan Alert, 256),
		stopCh:    make(chan struct{}),
	}
}

// Register adds a named check. Call before Start.
func (m *HealthMonitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start runs the periodic sweep until the context is cancelled or Stop
// is called. An initial sweep runs immediately.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *HealthMonitor) Stop() {
	m.stopped.Do(func() {
		close(m.stopCh)
	})
}

// Check runs every registered probe synchronously and returns the
// aggregate view.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.sweep(ctx)
	return m.Snapshot()
}

// Snapshot returns the aggregate view from the most recent sweep
// without probing anything.
func (m *HealthMonitor) Snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.results))
	worst := StatusHealthy
	for name, h := range m.results {
		components[name] = h
		if severity(h.Status) > severity(worst) {
			worst = h.Status
		}
	}

	return SystemHealth{
		Status:     worst,
		Components: components,
		Timestamp:  time.Now(),
		UptimeSec:  int64(time.Since(m.startTime).Seconds()),
	}
}

// Alerts exposes status-transition alerts. The channel is buffered and
// never blocks the sweep; consumers that fall behind lose alerts.
func (m *HealthMonitor) Alerts() <-chan Alert {
	return m.alertCh
}

// Component returns the latest result for one component.
func (m *HealthMonitor) Component(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.results[name]
	return h, ok
}

// ------------------------------------------------------------ internal ---

func (m *HealthMonitor) sweep(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	fresh := make(map[string]ComponentHealth, len(checks))
	for name, fn := range checks {
		start := time.Now()
		result := fn(ctx)
		result.Name = name
		result.LastChecked = time.Now()
		result.LatencyMs = time.Since(start).Milliseconds()
		fresh[name] = result
	}

	m.mu.Lock()
	prev := m.results
	m.results = fresh
	m.mu.Unlock()

	for name, cur := range fresh {
		old, existed := prev[name]
		if !existed || old.Status != cur.Status {
			m.emitAlert(name, cur)
		}
	}
}

func (m *HealthMonitor) emitAlert(name string, h ComponentHealth) {
	level := "info"
	switch h.Status {
	case StatusUnhealthy:
		level = "critical"
	case StatusDegraded:
		level = "warn"
	}

	msg := h.Message
	if msg == "" {
		msg = "status changed to " + string(h.Status)
	}

	select {
	case m.alertCh <- Alert{Level: level, Component: name, Message: msg, Timestamp: time.Now()}:
	default:
	}
}

func severity(s Status) int {
	switch s {
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return 0
	}
}
