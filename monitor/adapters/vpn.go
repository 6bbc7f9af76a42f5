package adapters

// IsSplitTunnelLikely reports whether traffic is bypassing the tunnel.
// Physical throughput strictly above ratio times the vpn throughput on
// either direction implies traffic the tunnel never saw; exactly at the
// ratio is still attributed to encapsulation overhead.
func IsSplitTunnelLikely(vpnDown, vpnUp, physDown, physUp, ratio float64) bool {
	return physDown > ratio*vpnDown || physUp > ratio*vpnUp
}

// OverheadEstimate returns the estimated VPN protocol overhead in bytes/sec.
// Without a split tunnel the physical surplus over the vpn throughput is the
// overhead. With one, direct subtraction would conflate unrelated physical
// traffic with true protocol overhead, so a fixed share of the vpn
// throughput is assumed instead.
func OverheadEstimate(vpnBps, physBps float64, splitTunnel bool, splitShare float64) float64 {
	if splitTunnel {
		return vpnBps * splitShare
	}
	if physBps > vpnBps {
		return physBps - vpnBps
	}
	return 0
}

// OverheadPercent expresses overhead relative to vpn throughput, capped.
// Zero vpn throughput yields zero rather than a division blowup.
func OverheadPercent(overheadBps, vpnBps, cap float64) float64 {
	if vpnBps <= 0 {
		return 0
	}
	percent := overheadBps / vpnBps * 100
	if percent > cap {
		percent = cap
	}
	return percent
}
