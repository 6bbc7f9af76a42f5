package procnet

import (
	"sort"
	"sync"
	"time"

	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

// ConnCounts is one process' share of the connection tables.
type ConnCounts struct {
	TCP int
	UDP int
}

// kernel pseudo-pids carry no attributable traffic
const (
	pidIdle   = 0
	pidKernel = 4
)

type processState struct {
	pid      int32
	identity Identity
	appID    string

	tcpConns     int
	udpConns     int
	prevTCPConns int
	prevUDPConns int

	downloadBps      float64
	uploadBps        float64
	sessionBytesRecv uint64
	sessionBytesSent uint64

	firstSeen time.Time
	lastSeen  time.Time
	active    bool
	closedAt  time.Time
}

// Estimator maps connection-table deltas to estimated per-process traffic.
// State is a bounded cache: closed processes are reaped after a grace window
// and the overall size is capped by recency of LastSeen.
type Estimator struct {
	mtx    sync.Mutex
	logger *logger.Logger
	cfg    Config

	states     map[int32]*processState
	identities *identityCache
	lastPoll   time.Time
}

func NewEstimator(log *logger.Logger, cfg Config, resolver IdentityResolver) *Estimator {
	cfg.Normalize()
	if resolver == nil {
		resolver = GopsutilResolver{}
	}
	return &Estimator{
		logger:     log,
		cfg:        cfg,
		states:     map[int32]*processState{},
		identities: newIdentityCache(resolver, cfg.CloseGrace),
	}
}

// Update ingests one poll's connection table. Observed pids get their traffic
// estimate advanced; absent pids are marked closed and eventually purged.
func (e *Estimator) Update(counts map[int32]ConnCounts, now time.Time) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	elapsed := now.Sub(e.lastPoll)
	first := e.lastPoll.IsZero()
	e.lastPoll = now

	for pid, cc := range counts {
		if pid == pidIdle || pid == pidKernel {
			continue
		}
		st, exists := e.states[pid]
		if !exists {
			ident := e.identities.get(pid)
			st = &processState{
				pid:          pid,
				identity:     ident,
				appID:        AppID(ident.ExePath, ident.Name),
				tcpConns:     cc.TCP,
				udpConns:     cc.UDP,
				prevTCPConns: cc.TCP,
				prevUDPConns: cc.UDP,
				firstSeen:    now,
			}
			e.states[pid] = st
		}

		st.prevTCPConns = st.tcpConns
		st.prevUDPConns = st.udpConns
		st.tcpConns = cc.TCP
		st.udpConns = cc.UDP
		st.lastSeen = now
		st.active = true
		st.closedAt = time.Time{}

		if first || elapsed <= 0 {
			continue
		}
		activity := absDelta(st.tcpConns, st.prevTCPConns) + absDelta(st.udpConns, st.prevUDPConns)
		if activity > 0 {
			estimated := uint64(activity) * e.cfg.BytesPerConnChange
			recv := uint64(float64(estimated) * e.cfg.DownloadShare)
			sent := estimated - recv
			st.sessionBytesRecv += recv
			st.sessionBytesSent += sent
			st.downloadBps = float64(recv) / elapsed.Seconds()
			st.uploadBps = float64(sent) / elapsed.Seconds()
		} else {
			st.downloadBps = decaySpeed(st.downloadBps, e.cfg.IdleDecay, e.cfg.SpeedFloor)
			st.uploadBps = decaySpeed(st.uploadBps, e.cfg.IdleDecay, e.cfg.SpeedFloor)
		}
	}

	// pids that vanished from the tables are closed as of this poll
	for pid, st := range e.states {
		if _, present := counts[pid]; present {
			continue
		}
		if st.active {
			st.active = false
			st.closedAt = now
			st.downloadBps = 0
			st.uploadBps = 0
		} else if !st.closedAt.IsZero() && now.Sub(st.closedAt) > e.cfg.CloseGrace {
			delete(e.states, pid)
			e.identities.forget(pid)
		}
	}

	e.enforceCapLocked()
}

func absDelta(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func decaySpeed(bps, decay, floor float64) float64 {
	bps *= decay
	if bps < floor {
		return 0
	}
	return bps
}

// enforceCapLocked evicts the surplus above MaxTracked ordered by ascending
// LastSeen, regardless of the close grace window.
func (e *Estimator) enforceCapLocked() {
	surplus := len(e.states) - e.cfg.MaxTracked
	if surplus <= 0 {
		return
	}
	byAge := make([]*processState, 0, len(e.states))
	for _, st := range e.states {
		byAge = append(byAge, st)
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].lastSeen.Before(byAge[j].lastSeen) })
	for _, st := range byAge[:surplus] {
		delete(e.states, st.pid)
		e.identities.forget(st.pid)
	}
	e.logger.Debugf("process cache over cap, evicted %d oldest entries", surplus)
}

// Snapshots returns a copy of every tracked process.
func (e *Estimator) Snapshots() []models.ProcessSnapshot {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	out := make([]models.ProcessSnapshot, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, snapshotOf(st))
	}
	return out
}

// Top returns the n busiest processes by current total speed.
func (e *Estimator) Top(n int) []models.ProcessSnapshot {
	all := e.Snapshots()
	sort.Slice(all, func(i, j int) bool {
		return all[i].DownloadBps+all[i].UploadBps > all[j].DownloadBps+all[j].UploadBps
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// ResetSessions zeroes every process's session byte totals. Connection
// baselines are untouched so estimation continues seamlessly.
func (e *Estimator) ResetSessions() {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	for _, st := range e.states {
		st.sessionBytesRecv = 0
		st.sessionBytesSent = 0
	}
}

// TrackedCount reports the number of live state entries.
func (e *Estimator) TrackedCount() int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return len(e.states)
}

func snapshotOf(st *processState) models.ProcessSnapshot {
	return models.ProcessSnapshot{
		PID:              st.pid,
		Name:             st.identity.Name,
		ExePath:          st.identity.ExePath,
		AppID:            st.appID,
		DisplayName:      st.identity.DisplayName,
		DownloadBps:      st.downloadBps,
		UploadBps:        st.uploadBps,
		SessionBytesRecv: st.sessionBytesRecv,
		SessionBytesSent: st.sessionBytesSent,
		TCPConnections:   st.tcpConns,
		UDPConnections:   st.udpConns,
		FirstSeen:        st.firstSeen,
		LastSeen:         st.lastSeen,
		Active:           st.active,
	}
}
