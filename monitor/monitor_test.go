package monitor

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netglance/netglance/monitor/adapters"
	"github.com/netglance/netglance/monitor/procnet"
	"github.com/netglance/netglance/monitor/resources"
	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

var testLog = logger.NewLogger("monitor-test", logger.LogOutput{File: os.Stdout}, logger.LogLevelDebug)

type fakeProvider struct {
	mtx sync.Mutex

	counters    []adapters.Counter
	countersErr error
	counts      map[int32]procnet.ConnCounts
	countsErr   error
	samples     []resources.ProcSample
	samplesErr  error
	system      models.SystemSnapshot
	systemErr   error

	countersCalls int
}

func (p *fakeProvider) AdapterCounters(ctx context.Context) ([]adapters.Counter, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.countersCalls++
	return p.counters, p.countersErr
}

func (p *fakeProvider) ConnectionCounts(ctx context.Context) (map[int32]procnet.ConnCounts, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.counts, p.countsErr
}

func (p *fakeProvider) ProcessSamples(ctx context.Context) ([]resources.ProcSample, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.samples, p.samplesErr
}

func (p *fakeProvider) SystemSample(ctx context.Context) (models.SystemSnapshot, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.system, p.systemErr
}

func (p *fakeProvider) calls() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.countersCalls
}

type recordingListener struct {
	mtx        sync.Mutex
	stats      []models.NetworkStats
	errs       []error
	elevations []bool
}

func (l *recordingListener) StatsUpdated(stats models.NetworkStats) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.stats = append(l.stats, stats)
}

func (l *recordingListener) ErrorOccurred(err error, requiresElevation bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.errs = append(l.errs, err)
	l.elevations = append(l.elevations, requiresElevation)
}

func (l *recordingListener) statsCount() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.stats)
}

func TestPollNotifiesOncePerTick(t *testing.T) {
	provider := &fakeProvider{
		counters: []adapters.Counter{
			{ID: "eth0", Name: "eth0", IsUp: true, BytesIn: 1000, BytesOut: 500},
		},
	}
	m := New(testLog, Config{}, provider)
	listener := &recordingListener{}
	m.Subscribe(listener)

	m.Poll(context.Background())
	m.Poll(context.Background())

	require.Equal(t, 2, listener.statsCount())
	assert.Empty(t, listener.errs)
	assert.Equal(t, listener.stats[1], m.GetCurrentStats())
}

func TestPollTransientErrorKeepsFeatureEnabled(t *testing.T) {
	provider := &fakeProvider{countersErr: errors.New("device busy")}
	m := New(testLog, Config{}, provider)
	listener := &recordingListener{}
	m.Subscribe(listener)

	m.Poll(context.Background())
	m.Poll(context.Background())

	// transient failures are retried every tick and reported each time
	assert.Equal(t, 2, provider.calls())
	require.Len(t, listener.errs, 2)
	assert.False(t, listener.elevations[0])
}

func TestPollCapabilityErrorDisablesFeature(t *testing.T) {
	provider := &fakeProvider{
		countsErr: &CapabilityError{
			Feature:           "connections",
			RequiresElevation: true,
			Err:               errors.New("access denied"),
		},
	}
	m := New(testLog, Config{}, provider)
	listener := &recordingListener{}
	m.Subscribe(listener)

	m.Poll(context.Background())
	m.Poll(context.Background())
	m.Poll(context.Background())

	// reported on the first tick only, then the feature stays off
	require.Len(t, listener.errs, 1)
	assert.True(t, listener.elevations[0])
	assert.Equal(t, 3, listener.statsCount())
}

func TestSwapProviderResetsUnsupported(t *testing.T) {
	broken := &fakeProvider{
		countsErr: &CapabilityError{Feature: "connections", Err: errors.New("not implemented")},
	}
	m := New(testLog, Config{}, broken)
	listener := &recordingListener{}
	m.Subscribe(listener)

	m.Poll(context.Background())
	require.Len(t, listener.errs, 1)

	working := &fakeProvider{
		counts: map[int32]procnet.ConnCounts{
			100: {TCP: 4, UDP: 1},
		},
	}
	m.SwapProvider(working)
	m.Poll(context.Background())

	assert.Len(t, listener.errs, 1)
	top := m.GetTopProcesses(5)
	require.Len(t, top, 1)
	assert.EqualValues(t, 100, top[0].PID)
}

func TestSetPollingIntervalClamps(t *testing.T) {
	m := New(testLog, Config{}, &fakeProvider{})

	assert.Equal(t, MinInterval, m.SetPollingInterval(10*time.Millisecond))
	assert.Equal(t, MaxInterval, m.SetPollingInterval(time.Hour))
	assert.Equal(t, 5*time.Second, m.SetPollingInterval(5*time.Second))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ParseAndValidate()
	assert.Equal(t, DefaultInterval, cfg.Interval)

	cfg = Config{Interval: time.Millisecond}
	cfg.ParseAndValidate()
	assert.Equal(t, MinInterval, cfg.Interval)
}

func TestTopProcessesEnrichedWithResources(t *testing.T) {
	provider := &fakeProvider{
		counts: map[int32]procnet.ConnCounts{
			200: {TCP: 2, UDP: 0},
		},
		samples: []resources.ProcSample{
			{PID: 200, CPUSeconds: 0, MemoryBytes: 1 << 20},
		},
	}
	m := New(testLog, Config{}, provider)

	m.Poll(context.Background())

	top := m.GetTopProcesses(1)
	require.Len(t, top, 1)
	assert.EqualValues(t, 1<<20, top[0].MemoryBytes)
}

func TestStartStop(t *testing.T) {
	provider := &fakeProvider{}
	m := New(testLog, Config{Interval: 50 * time.Millisecond}, provider)

	m.Start(context.Background())
	time.Sleep(120 * time.Millisecond)
	m.Stop()

	// clamped interval means at most a handful of ticks ran
	calls := provider.calls()
	assert.GreaterOrEqual(t, calls, 1)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, calls, provider.calls(), "no polls after Stop")
}
