package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/yairfalse/pulse/internal/logger"
)

// Thresholds are the independently configurable alert limits.
type Thresholds struct {
	// MemoryCeilingBytes is the heap-estimate ceiling.
	MemoryCeilingBytes int64 `json:"memory_ceiling_bytes"`
	// GrowthCeilingBytesPerSec is the heap growth-rate ceiling.
	GrowthCeilingBytesPerSec float64 `json:"growth_ceiling_bytes_per_sec"`
	// LeakCountCeiling is the orphan-candidate ceiling.
	LeakCountCeiling int `json:"leak_count_ceiling"`
	// FPSFloor is the minimum acceptable frame rate.
	FPSFloor float64 `json:"fps_floor"`
}

// Metrics is one sample of the aggregate signals the monitor polls.
type Metrics struct {
	HeapBytes         int64     `json:"heap_bytes"`
	GrowthBytesPerSec float64   `json:"growth_bytes_per_sec"`
	LeakCount         int       `json:"leak_count"`
	FPS               float64   `json:"fps"`
	Timestamp         time.Time `json:"timestamp"`
}

// MetricsSource produces metric samples. The default source combines
// runtime heap statistics with the leak registry and the render
// scheduler; tests substitute a fixed source.
type MetricsSource interface {
	Collect() Metrics
}

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Action is a remediation attached to an alert. The primary action of an
// auto-resolve alert runs when the alert activates.
type Action struct {
	ID      string
	Label   string
	Primary bool
	Run     func(context.Context) error
}

// Alert is one entry of the alert catalog. At most one live alert exists
// per id; creating an alert with an existing id replaces it.
type Alert struct {
	ID          string    `json:"id"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Actions     []Action  `json:"-"`
	AutoResolve bool      `json:"auto_resolve"`
	Active      bool      `json:"active"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
}

// Listener is invoked synchronously when an alert transitions to active.
type Listener func(Alert)

// Config configures a Monitor.
type Config struct {
	Thresholds Thresholds
	// PollInterval is the requested polling cadence.
	PollInterval time.Duration
	// MinPollSpacing rate-limits checks independently of the requested
	// interval, so a tight interval cannot cause check storms.
	MinPollSpacing time.Duration
	// ResolveFactor sets how comfortably below a threshold a signal must
	// fall before the corresponding alert auto-resolves. Defaults to 0.9.
	ResolveFactor float64
}

// Monitor polls aggregate metrics against thresholds and raises or
// auto-resolves alerts. Alert state per id is a two-state machine:
// inactive -> active on breach (listeners notified, primary action run
// for auto-resolve alerts), active -> inactive when the signal falls
// comfortably below threshold on a later poll.
type Monitor struct {
	mu         sync.Mutex
	cfg        Config
	source     MetricsSource
	alerts     map[string]*Alert
	listeners  []Listener
	log        logger.Logger
	lastCheck  time.Time
	lastSample Metrics
	hasSample  bool

	stop chan struct{}
	wg   sync.WaitGroup
	now  func() time.Time
}

// New creates a monitor. The alert catalog starts empty; install one via
// CreateAlert, typically DefaultAlerts.
func New(cfg Config, source MetricsSource, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.MinPollSpacing <= 0 {
		cfg.MinPollSpacing = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ResolveFactor <= 0 || cfg.ResolveFactor >= 1 {
		cfg.ResolveFactor = 0.9
	}
	return &Monitor{
		cfg:    cfg,
		source: source,
		alerts: make(map[string]*Alert),
		log:    log,
		now:    time.Now,
	}
}

// CreateAlert installs an alert into the catalog, replacing any existing
// alert with the same id.
func (m *Monitor) CreateAlert(a Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert := a
	m.alerts[a.ID] = &alert
}

// ResolveAlert marks an alert inactive. Unknown ids are ignored.
func (m *Monitor) ResolveAlert(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolveLocked(id)
}

// GetActiveAlerts returns a snapshot of currently active alerts.
func (m *Monitor) GetActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []Alert
	for _, a := range m.alerts {
		if a.Active {
			active = append(active, *a)
		}
	}
	return active
}

// AddListener registers a callback for alert activations. Listeners run
// synchronously on the polling goroutine.
func (m *Monitor) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, l)
}

// UpdateThresholds replaces the configured thresholds at runtime.
func (m *Monitor) UpdateThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg.Thresholds = t
}

// Thresholds returns the current thresholds.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cfg.Thresholds
}

// Start begins periodic polling. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	interval := m.cfg.PollInterval
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Check(context.Background())
			}
		}
	}()
}

// Stop halts polling. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	m.wg.Wait()
}

// Check polls the metrics source once, subject to the minimum spacing,
// and walks the alert catalog activating and resolving as thresholds
// dictate. Safe to call directly; the periodic loop uses it too.
func (m *Monitor) Check(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.cfg.MinPollSpacing {
		m.mu.Unlock()
		return
	}
	m.lastCheck = now
	source := m.source
	m.mu.Unlock()

	sample := source.Collect()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}

	m.mu.Lock()
	if m.hasSample && sample.GrowthBytesPerSec == 0 {
		if dt := sample.Timestamp.Sub(m.lastSample.Timestamp).Seconds(); dt > 0 {
			sample.GrowthBytesPerSec = float64(sample.HeapBytes-m.lastSample.HeapBytes) / dt
		}
	}
	m.lastSample = sample
	m.hasSample = true

	t := m.cfg.Thresholds
	rf := m.cfg.ResolveFactor

	type transition struct {
		alert   Alert
		primary *Action
	}
	var activated []transition

	evaluate := func(id string, breached, resolved bool) {
		a, ok := m.alerts[id]
		if !ok {
			return
		}
		switch {
		case breached && !a.Active:
			a.Active = true
			a.ActivatedAt = now
			tr := transition{alert: *a}
			if a.AutoResolve {
				for i := range a.Actions {
					if a.Actions[i].Primary {
						tr.primary = &a.Actions[i]
						break
					}
				}
			}
			activated = append(activated, tr)
		case resolved && a.Active:
			m.resolveLocked(id)
		}
	}

	if t.MemoryCeilingBytes > 0 {
		evaluate(AlertMemoryCeiling,
			sample.HeapBytes > t.MemoryCeilingBytes,
			float64(sample.HeapBytes) < float64(t.MemoryCeilingBytes)*rf)
	}
	if t.GrowthCeilingBytesPerSec > 0 {
		evaluate(AlertMemoryGrowth,
			sample.GrowthBytesPerSec > t.GrowthCeilingBytesPerSec,
			sample.GrowthBytesPerSec < t.GrowthCeilingBytesPerSec*rf)
	}
	if t.LeakCountCeiling > 0 {
		evaluate(AlertLeakCount,
			sample.LeakCount > t.LeakCountCeiling,
			float64(sample.LeakCount) < float64(t.LeakCountCeiling)*rf)
	}
	if t.FPSFloor > 0 {
		evaluate(AlertFPSFloor,
			sample.FPS > 0 && sample.FPS < t.FPSFloor,
			sample.FPS > t.FPSFloor/rf)
	}

	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, tr := range activated {
		m.log.WithFields(map[string]interface{}{
			"alert":    tr.alert.ID,
			"severity": string(tr.alert.Severity),
		}).Warn(tr.alert.Message)

		for _, l := range listeners {
			l(tr.alert)
		}
		if tr.primary != nil && tr.primary.Run != nil {
			if err := tr.primary.Run(ctx); err != nil {
				m.log.WithField("alert", tr.alert.ID).Error("remediation action failed", err)
			}
		}
	}
}

// LastSample returns the most recent metrics sample, if any.
func (m *Monitor) LastSample() (Metrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastSample, m.hasSample
}

// resolveLocked flips an alert to inactive. Caller holds the lock.
func (m *Monitor) resolveLocked(id string) {
	if a, ok := m.alerts[id]; ok && a.Active {
		a.Active = false
		a.ResolvedAt = m.now()
	}
}

// RuntimeSource is the default metrics source: heap from the Go runtime,
// leak count from the registry, frame rate from the scheduler. Either
// collaborator may be nil.
type RuntimeSource struct {
	Leaks  interface{ OrphanCount() int }
	Frames interface{ FPS() float64 }
}

// Collect implements MetricsSource.
func (s RuntimeSource) Collect() Metrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := Metrics{
		HeapBytes: int64(ms.HeapAlloc),
		Timestamp: time.Now(),
	}
	if s.Leaks != nil {
		m.LeakCount = s.Leaks.OrphanCount()
	}
	if s.Frames != nil {
		m.FPS = s.Frames.FPS()
	}
	return m
}
