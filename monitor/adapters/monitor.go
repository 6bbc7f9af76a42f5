package adapters

import (
	"sort"
	"sync"
	"time"

	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

// Config carries the tunables of the adapter monitor. Zero values are
// replaced with defaults by Normalize.
type Config struct {
	// MinElapsed guards the speed division; polls arriving closer together
	// than this advance counters without recomputing speed.
	MinElapsed time.Duration

	// SplitTunnelRatio is the physical/vpn throughput ratio above which a
	// split tunnel is assumed. Strictly greater-than.
	SplitTunnelRatio float64

	// SplitOverheadShare is the fraction of vpn throughput assumed to be
	// protocol overhead when a split tunnel makes direct subtraction
	// meaningless.
	SplitOverheadShare float64

	// OverheadPercentCap bounds the reported overhead percentage.
	OverheadPercentCap float64
}

func (c *Config) Normalize() {
	if c.MinElapsed <= 0 {
		c.MinElapsed = 100 * time.Millisecond
	}
	if c.SplitTunnelRatio <= 0 {
		c.SplitTunnelRatio = 1.5
	}
	if c.SplitOverheadShare <= 0 {
		c.SplitOverheadShare = 0.10
	}
	if c.OverheadPercentCap <= 0 {
		c.OverheadPercentCap = 50
	}
}

// Monitor discovers adapters, classifies them and derives per-adapter speeds
// from cumulative counter deltas. All state lives behind one mutex.
type Monitor struct {
	mtx    sync.Mutex
	logger *logger.Logger
	cfg    Config

	states          map[string]*State
	selection       string
	resolvedPrimary string
	showVirtual     bool
}

func NewMonitor(log *logger.Logger, cfg Config) *Monitor {
	cfg.Normalize()
	return &Monitor{
		logger:      log,
		cfg:         cfg,
		states:      map[string]*State{},
		showVirtual: true,
	}
}

// Update ingests one poll's counter readings. Down adapters and filter-driver
// shims are skipped; everything else is classified on first sight and gets
// its speed recomputed from the counter delta.
func (m *Monitor) Update(counters []Counter, now time.Time) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for i := range counters {
		c := &counters[i]
		if !c.IsUp || IsFilterDriver(c.Name, c.Description) {
			continue
		}

		st, exists := m.states[c.ID]
		if !exists {
			st = &State{
				ID:             c.ID,
				Name:           c.Name,
				Description:    c.Description,
				Classification: Classify(c.Name, c.Description, c.Kind),
				LastBytesIn:    c.BytesIn,
				LastBytesOut:   c.BytesOut,
				LastPoll:       now,
			}
			m.states[c.ID] = st
			m.logger.Debugf("discovered adapter %q (%s)", c.Name, st.Category)
			continue
		}

		deltaIn := counterDelta(st.LastBytesIn, c.BytesIn)
		deltaOut := counterDelta(st.LastBytesOut, c.BytesOut)
		st.SessionBytesRecv += deltaIn
		st.SessionBytesSent += deltaOut
		st.LastBytesIn = c.BytesIn
		st.LastBytesOut = c.BytesOut

		elapsed := now.Sub(st.LastPoll)
		st.LastPoll = now
		if elapsed < m.cfg.MinElapsed {
			continue
		}
		st.DownloadBps = float64(deltaIn) / elapsed.Seconds()
		st.UploadBps = float64(deltaOut) / elapsed.Seconds()
	}
}

// counterDelta handles counter resets: an apparent decrease means the OS
// counter restarted (reboot, driver reload), so all current traffic is new.
func counterDelta(last, current uint64) uint64 {
	if current < last {
		return current
	}
	return current - last
}

// SetSelection picks the adapter the aggregate snapshot reflects: "" for all,
// models.AdapterSelectionAuto for the resolved primary, or a concrete id.
func (m *Monitor) SetSelection(id string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.selection = id
}

func (m *Monitor) Selection() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.selection
}

// SetResolvedPrimary records the default-route adapter id supplied by the
// host; the empty string falls back to throughput-based resolution.
func (m *Monitor) SetResolvedPrimary(id string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.resolvedPrimary = id
}

func (m *Monitor) SetShowVirtual(show bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.showVirtual = show
}

// ResetSession zeroes the session byte totals of every adapter. Cumulative
// counters are untouched so speed computation keeps its baseline.
func (m *Monitor) ResetSession() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for _, st := range m.states {
		st.SessionBytesRecv = 0
		st.SessionBytesSent = 0
	}
}

// primaryLocked resolves the effective primary adapter id.
func (m *Monitor) primaryLocked() string {
	if m.resolvedPrimary != "" {
		if _, ok := m.states[m.resolvedPrimary]; ok {
			return m.resolvedPrimary
		}
	}
	best := ""
	bestBps := 0.0
	for id, st := range m.states {
		if st.TotalBps() > bestBps {
			best, bestBps = id, st.TotalBps()
		}
	}
	return best
}

func (m *Monitor) matchesSelectionLocked(st *State) bool {
	switch m.selection {
	case "":
		return true
	case models.AdapterSelectionAuto:
		return st.ID == m.primaryLocked()
	default:
		return st.ID == m.selection
	}
}

// Snapshot builds the immutable per-poll network stats over the current
// selection, including the vpn/physical pair used for split-tunnel inference.
func (m *Monitor) Snapshot(now time.Time) models.NetworkStats {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	stats := models.NetworkStats{
		Timestamp: now,
		AdapterID: m.selection,
	}

	var vpn, phys *State
	for _, st := range m.states {
		if m.matchesSelectionLocked(st) {
			stats.DownloadBps += st.DownloadBps
			stats.UploadBps += st.UploadBps
			stats.SessionBytesRecv += st.SessionBytesRecv
			stats.SessionBytesSent += st.SessionBytesSent
		}
		switch {
		case st.Category == CategoryVPN:
			if vpn == nil || st.TotalBps() > vpn.TotalBps() {
				vpn = st
			}
		case st.Category == CategoryPhysical:
			if phys == nil || st.TotalBps() > phys.TotalBps() {
				phys = st
			}
		}
	}

	if vpn != nil {
		stats.VPNDownloadBps = vpn.DownloadBps
		stats.VPNUploadBps = vpn.UploadBps
		stats.HasVPNTraffic = vpn.TotalBps() > 0
	}
	if phys != nil {
		stats.PhysDownloadBps = phys.DownloadBps
		stats.PhysUploadBps = phys.UploadBps
	}
	if vpn != nil && phys != nil {
		stats.SplitTunnelLikely = IsSplitTunnelLikely(
			stats.VPNDownloadBps, stats.VPNUploadBps,
			stats.PhysDownloadBps, stats.PhysUploadBps,
			m.cfg.SplitTunnelRatio)
	}
	return stats
}

// States returns copies of all live adapter states, honoring the
// show-virtual toggle: VM and container rows are hidden when it is off, but
// known VPNs stay visible since their status is operationally relevant.
func (m *Monitor) States() []State {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	out := make([]State, 0, len(m.states))
	for _, st := range m.states {
		if !m.showVirtual && st.IsVirtual && st.Category != CategoryVPN {
			continue
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Overhead reports the current VPN overhead estimate for the snapshot pair.
func (m *Monitor) Overhead(stats models.NetworkStats) (bytesPerSec, percent float64) {
	vpnBps := stats.VPNDownloadBps + stats.VPNUploadBps
	physBps := stats.PhysDownloadBps + stats.PhysUploadBps
	if !stats.HasVPNTraffic || vpnBps == 0 {
		return 0, 0
	}
	bytesPerSec = OverheadEstimate(vpnBps, physBps, stats.SplitTunnelLikely, m.cfg.SplitOverheadShare)
	percent = OverheadPercent(bytesPerSec, vpnBps, m.cfg.OverheadPercentCap)
	return bytesPerSec, percent
}
