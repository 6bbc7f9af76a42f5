package resources

import (
	"sort"
	"sync"
	"time"

	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

// Config carries the sampler tunables; zero values become defaults.
type Config struct {
	// AlphaUp/AlphaDown are the asymmetric smoothing factors.
	AlphaUp   float64
	AlphaDown float64

	// RingCapacity bounds the buffered system samples (7200 at a one
	// second tick is about two hours).
	RingCapacity int

	// CoreCount normalizes per-process CPU time; 0 means single core.
	CoreCount int
}

func (c *Config) Normalize() {
	if c.AlphaUp <= 0 {
		c.AlphaUp = 0.3
	}
	if c.AlphaDown <= 0 {
		c.AlphaDown = 0.1
	}
	if c.RingCapacity <= 0 {
		c.RingCapacity = 7200
	}
	if c.CoreCount <= 0 {
		c.CoreCount = 1
	}
}

// ProcSample is one raw per-process reading from the counter source.
type ProcSample struct {
	PID         int32
	CPUSeconds  float64
	MemoryBytes uint64
}

type procUsage struct {
	lastCPUSeconds float64
	lastSampledAt  time.Time
	hasBaseline    bool
	cpu            EMA
	mem            EMA
}

// Sampler tracks smoothed per-process CPU/memory and buffers raw system-wide
// samples for the rollup engine. System samples are never smoothed.
type Sampler struct {
	mtx    sync.Mutex
	logger *logger.Logger
	cfg    Config

	procs map[int32]*procUsage
	ring  *sampleRing
}

func NewSampler(log *logger.Logger, cfg Config) *Sampler {
	cfg.Normalize()
	return &Sampler{
		logger: log,
		cfg:    cfg,
		procs:  map[int32]*procUsage{},
		ring:   newSampleRing(cfg.RingCapacity),
	}
}

// SampleSystem buffers one unsmoothed system-wide sample.
func (s *Sampler) SampleSystem(snap models.SystemSnapshot) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.ring.push(snap)
}

// SampleProcesses ingests one batch of raw per-process readings. CPU percent
// is only defined from the second sample of a pid onward; memory smoothing
// starts at the first. Pids absent from the batch are dropped.
func (s *Sampler) SampleProcesses(samples []ProcSample, now time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	seen := make(map[int32]struct{}, len(samples))
	for _, raw := range samples {
		seen[raw.PID] = struct{}{}
		u, exists := s.procs[raw.PID]
		if !exists {
			u = &procUsage{
				cpu: EMA{AlphaUp: s.cfg.AlphaUp, AlphaDown: s.cfg.AlphaDown},
				mem: EMA{AlphaUp: s.cfg.AlphaUp, AlphaDown: s.cfg.AlphaDown},
			}
			s.procs[raw.PID] = u
		}

		u.mem.Add(float64(raw.MemoryBytes))

		if u.hasBaseline {
			elapsed := now.Sub(u.lastSampledAt).Seconds()
			if elapsed > 0 {
				cpuPercent := (raw.CPUSeconds - u.lastCPUSeconds) / elapsed / float64(s.cfg.CoreCount) * 100
				if cpuPercent < 0 {
					cpuPercent = 0
				}
				u.cpu.Add(cpuPercent)
			}
		}
		u.lastCPUSeconds = raw.CPUSeconds
		u.lastSampledAt = now
		u.hasBaseline = true
	}

	for pid := range s.procs {
		if _, ok := seen[pid]; !ok {
			delete(s.procs, pid)
		}
	}
}

// Usage returns the smoothed CPU percent and memory bytes for a pid.
func (s *Sampler) Usage(pid int32) (cpuPercent float64, memoryBytes uint64, ok bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	u, exists := s.procs[pid]
	if !exists {
		return 0, 0, false
	}
	return u.cpu.Value(), uint64(u.mem.Value()), true
}

// BufferedCount reports the number of system samples awaiting aggregation.
func (s *Sampler) BufferedCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.ring.len()
}

// DrainCompletedHours removes and returns buffered system samples from fully
// elapsed hours, grouped by hour bucket start. The in-progress hour is never
// drained.
func (s *Sampler) DrainCompletedHours(now time.Time) map[int64][]models.SystemSnapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	currentHour := now.UTC().Truncate(time.Hour).Unix()
	return groupByHour(s.ring.drainBefore(currentHour))
}

// Restore puts drained samples back after a failed aggregation write, so
// the data is retried on the next pass instead of being lost.
func (s *Sampler) Restore(groups map[int64][]models.SystemSnapshot) {
	if len(groups) == 0 {
		return
	}
	var samples []models.SystemSnapshot
	for _, group := range groups {
		samples = append(samples, group...)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })

	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.ring.pushFront(samples)
}

// DrainAll removes and returns every buffered sample, including the current
// hour's. Used by the final flush on shutdown so a partially filled bucket
// is not lost.
func (s *Sampler) DrainAll() map[int64][]models.SystemSnapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return groupByHour(s.ring.drainAll())
}

func groupByHour(samples []models.SystemSnapshot) map[int64][]models.SystemSnapshot {
	if len(samples) == 0 {
		return nil
	}
	grouped := map[int64][]models.SystemSnapshot{}
	for _, sample := range samples {
		hour := sample.Timestamp.UTC().Truncate(time.Hour).Unix()
		grouped[hour] = append(grouped[hour], sample)
	}
	return grouped
}
