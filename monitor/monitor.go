package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/netglance/netglance/monitor/adapters"
	"github.com/netglance/netglance/monitor/procnet"
	"github.com/netglance/netglance/monitor/resources"
	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

// Provider supplies the raw OS counters. Every call may fail on privilege or
// platform gaps; the engine degrades instead of crashing.
type Provider interface {
	AdapterCounters(ctx context.Context) ([]adapters.Counter, error)
	ConnectionCounts(ctx context.Context) (map[int32]procnet.ConnCounts, error)
	ProcessSamples(ctx context.Context) ([]resources.ProcSample, error)
	SystemSample(ctx context.Context) (models.SystemSnapshot, error)
}

// Listener receives poll outcomes: StatsUpdated fires at most once per
// completed poll, synchronously after state mutation.
type Listener interface {
	StatsUpdated(stats models.NetworkStats)
	ErrorOccurred(err error, requiresElevation bool)
}

const (
	DefaultInterval = time.Second
	MinInterval     = 250 * time.Millisecond
	MaxInterval     = time.Minute
)

type Config struct {
	Interval  time.Duration
	Adapters  adapters.Config
	Procnet   procnet.Config
	Resources resources.Config
}

// ParseAndValidate clamps out-of-range values instead of rejecting them.
func (c *Config) ParseAndValidate() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	c.Interval = clampInterval(c.Interval)
}

func clampInterval(interval time.Duration) time.Duration {
	if interval < MinInterval {
		return MinInterval
	}
	if interval > MaxInterval {
		return MaxInterval
	}
	return interval
}

// Monitor drives the three sampling subsystems from one periodic loop and
// publishes an immutable snapshot per tick.
type Monitor struct {
	mtx    sync.Mutex
	logger *logger.Logger

	provider  Provider
	interval  time.Duration
	listeners []Listener
	lastStats models.NetworkStats

	// features confirmed unavailable; reported once, then skipped
	unsupported map[string]bool

	adapters  *adapters.Monitor
	processes *procnet.Estimator
	resources *resources.Sampler

	stopFn func()
	done   chan struct{}
}

func New(log *logger.Logger, cfg Config, provider Provider) *Monitor {
	cfg.ParseAndValidate()
	return &Monitor{
		logger:      log,
		provider:    provider,
		interval:    cfg.Interval,
		unsupported: map[string]bool{},
		adapters:    adapters.NewMonitor(log.Fork("adapters"), cfg.Adapters),
		processes:   procnet.NewEstimator(log.Fork("procnet"), cfg.Procnet, nil),
		resources:   resources.NewSampler(log.Fork("resources"), cfg.Resources),
	}
}

func (m *Monitor) Start(ctx context.Context) {
	ctx, m.stopFn = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.refreshLoop(ctx)
	m.logger.Debugf("monitor started")
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (m *Monitor) Stop() {
	if m.stopFn == nil {
		return
	}
	m.stopFn()
	<-m.done
	m.logger.Debugf("monitor stopped")
}

func (m *Monitor) refreshLoop(ctx context.Context) {
	defer close(m.done)
	for {
		m.Poll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.currentInterval()):
		}
	}
}

func (m *Monitor) currentInterval() time.Duration {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.interval
}

// Poll runs one sampling cycle across all subsystems and notifies listeners.
// A failing subsystem is skipped for this tick; only explicit shutdown stops
// the loop.
func (m *Monitor) Poll(ctx context.Context) {
	m.mtx.Lock()
	provider := m.provider
	m.mtx.Unlock()

	now := time.Now()
	var pollErr *multierror.Error

	if !m.isUnsupported("adapters") {
		if counters, err := provider.AdapterCounters(ctx); err != nil {
			pollErr = multierror.Append(pollErr, m.handleSubsystemError("adapters", err))
		} else {
			m.adapters.Update(counters, now)
		}
	}

	if !m.isUnsupported("connections") {
		if counts, err := provider.ConnectionCounts(ctx); err != nil {
			pollErr = multierror.Append(pollErr, m.handleSubsystemError("connections", err))
		} else {
			m.processes.Update(counts, now)
		}
	}

	if !m.isUnsupported("process-resources") {
		if samples, err := provider.ProcessSamples(ctx); err != nil {
			pollErr = multierror.Append(pollErr, m.handleSubsystemError("process-resources", err))
		} else {
			m.resources.SampleProcesses(samples, now)
		}
	}

	if !m.isUnsupported("system-resources") {
		if sample, err := provider.SystemSample(ctx); err != nil {
			pollErr = multierror.Append(pollErr, m.handleSubsystemError("system-resources", err))
		} else {
			sample.Timestamp = now
			m.resources.SampleSystem(sample)
		}
	}

	stats := m.adapters.Snapshot(now)

	m.mtx.Lock()
	m.lastStats = stats
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mtx.Unlock()

	for _, listener := range listeners {
		listener.StatsUpdated(stats)
	}
	if err := pollErr.ErrorOrNil(); err != nil {
		requiresElevation := false
		for _, e := range pollErr.Errors {
			if capErr, ok := e.(*CapabilityError); ok && capErr.RequiresElevation {
				requiresElevation = true
			}
		}
		for _, listener := range listeners {
			listener.ErrorOccurred(err, requiresElevation)
		}
	}
}

// handleSubsystemError separates capability gaps (disable + report once)
// from transient failures (log, try again next tick).
func (m *Monitor) handleSubsystemError(feature string, err error) error {
	if capErr, ok := err.(*CapabilityError); ok {
		m.mtx.Lock()
		m.unsupported[feature] = true
		m.mtx.Unlock()
		m.logger.Infof("%s disabled: %v", feature, capErr)
		return capErr
	}
	m.logger.Debugf("transient %s failure, skipping tick: %v", feature, err)
	return err
}

func (m *Monitor) isUnsupported(feature string) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.unsupported[feature]
}

// SwapProvider replaces the counter source atomically with respect to a
// concurrent poll: a tick observes either the old or the new provider,
// never a mix.
func (m *Monitor) SwapProvider(provider Provider) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.provider = provider
	// a more capable source may supply what the old one could not
	m.unsupported = map[string]bool{}
}

func (m *Monitor) Subscribe(listener Listener) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.listeners = append(m.listeners, listener)
}

// SetPollingInterval applies a clamped interval from the next tick onward.
func (m *Monitor) SetPollingInterval(interval time.Duration) time.Duration {
	clamped := clampInterval(interval)
	m.mtx.Lock()
	m.interval = clamped
	m.mtx.Unlock()
	return clamped
}

func (m *Monitor) SetAdapter(id string) {
	m.adapters.SetSelection(id)
}

func (m *Monitor) SetResolvedPrimary(id string) {
	m.adapters.SetResolvedPrimary(id)
}

func (m *Monitor) SetShowVirtual(show bool) {
	m.adapters.SetShowVirtual(show)
}

// ResetSession zeroes the session byte totals of adapters and processes
// alike; speeds and counter baselines are untouched.
func (m *Monitor) ResetSession() {
	m.adapters.ResetSession()
	m.processes.ResetSessions()
}

func (m *Monitor) GetCurrentStats() models.NetworkStats {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.lastStats
}

func (m *Monitor) GetAllAdapterStats() []adapters.State {
	return m.adapters.States()
}

// GetTopProcesses returns the n busiest processes enriched with their
// smoothed resource usage.
func (m *Monitor) GetTopProcesses(n int) []models.ProcessSnapshot {
	top := m.processes.Top(n)
	for i := range top {
		if cpu, mem, ok := m.resources.Usage(top[i].PID); ok {
			top[i].CPUPercent = cpu
			top[i].MemoryBytes = mem
		}
	}
	return top
}

// ProcessSnapshots returns every tracked process, resource-enriched.
func (m *Monitor) ProcessSnapshots() []models.ProcessSnapshot {
	procs := m.processes.Snapshots()
	for i := range procs {
		if cpu, mem, ok := m.resources.Usage(procs[i].PID); ok {
			procs[i].CPUPercent = cpu
			procs[i].MemoryBytes = mem
		}
	}
	return procs
}

// SampleBuffer exposes the resource sampler's buffered system samples to the
// rollup engine.
func (m *Monitor) SampleBuffer() *resources.Sampler {
	return m.resources
}
