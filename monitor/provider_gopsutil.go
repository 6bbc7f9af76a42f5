package monitor

import (
	"context"

	utilcpu "github.com/shirou/gopsutil/v3/cpu"
	utilmem "github.com/shirou/gopsutil/v3/mem"
	utilnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/netglance/netglance/monitor/adapters"
	"github.com/netglance/netglance/monitor/procnet"
	"github.com/netglance/netglance/monitor/resources"
	"github.com/netglance/netglance/share/models"
)

// GopsutilProvider reads the OS counters through gopsutil. It has no state
// of its own; gopsutil keeps the last-call CPU baseline internally.
type GopsutilProvider struct{}

func NewGopsutilProvider() *GopsutilProvider {
	return &GopsutilProvider{}
}

func (p *GopsutilProvider) AdapterCounters(ctx context.Context) ([]adapters.Counter, error) {
	interfaces, err := utilnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	ioCounters, err := utilnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	countersByName := map[string]utilnet.IOCountersStat{}
	for _, ioCounter := range ioCounters {
		countersByName[ioCounter.Name] = ioCounter
	}

	counters := make([]adapters.Counter, 0, len(interfaces))
	for _, netIf := range interfaces {
		ioCounter, hasCounters := countersByName[netIf.Name]
		if !hasCounters {
			logrus.Debugf("[NET] no IO counters for interface %s", netIf.Name)
			continue
		}
		counters = append(counters, adapters.Counter{
			ID:       netIf.Name,
			Name:     netIf.Name,
			Kind:     kindFromFlags(netIf.Flags),
			IsUp:     hasFlag(netIf.Flags, "up"),
			BytesIn:  ioCounter.BytesRecv,
			BytesOut: ioCounter.BytesSent,
		})
	}
	return counters, nil
}

func hasFlag(flags []string, want string) bool {
	for _, flag := range flags {
		if flag == want {
			return true
		}
	}
	return false
}

func kindFromFlags(flags []string) adapters.Kind {
	if hasFlag(flags, "pointtopoint") {
		return adapters.KindTunnel
	}
	return adapters.KindOther
}

func (p *GopsutilProvider) ConnectionCounts(ctx context.Context) (map[int32]procnet.ConnCounts, error) {
	tcp, err := utilnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	udp, err := utilnet.ConnectionsWithContext(ctx, "udp")
	if err != nil {
		return nil, err
	}

	counts := map[int32]procnet.ConnCounts{}
	for _, conn := range tcp {
		cc := counts[conn.Pid]
		cc.TCP++
		counts[conn.Pid] = cc
	}
	for _, conn := range udp {
		cc := counts[conn.Pid]
		cc.UDP++
		counts[conn.Pid] = cc
	}
	return counts, nil
}

func (p *GopsutilProvider) ProcessSamples(ctx context.Context) ([]resources.ProcSample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]resources.ProcSample, 0, len(procs))
	for _, proc := range procs {
		times, err := proc.TimesWithContext(ctx)
		if err != nil {
			// the process likely exited between listing and sampling
			continue
		}
		sample := resources.ProcSample{
			PID:        proc.Pid,
			CPUSeconds: times.User + times.System,
		}
		if memInfo, memErr := proc.MemoryInfoWithContext(ctx); memErr == nil {
			sample.MemoryBytes = memInfo.RSS
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (p *GopsutilProvider) SystemSample(ctx context.Context) (models.SystemSnapshot, error) {
	snap := models.SystemSnapshot{}

	cpuPercents, err := utilcpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snap, err
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	memStats, err := utilmem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, err
	}
	snap.MemUsedBytes = memStats.Used
	snap.MemTotalBytes = memStats.Total

	// no portable GPU counter source; a nil reading disables the gpu columns
	return snap, nil
}
