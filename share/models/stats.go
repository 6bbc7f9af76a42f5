package models

import "time"

// AdapterSelectionAuto selects the resolved primary adapter; the empty
// selection aggregates over all adapters.
const AdapterSelectionAuto = "auto"

// NetworkStats is an immutable snapshot produced once per poll tick.
type NetworkStats struct {
	Timestamp         time.Time `json:"timestamp"`
	AdapterID         string    `json:"adapter_id"`
	DownloadBps       float64   `json:"download_bps"`
	UploadBps         float64   `json:"upload_bps"`
	SessionBytesRecv  uint64    `json:"session_bytes_recv"`
	SessionBytesSent  uint64    `json:"session_bytes_sent"`
	VPNDownloadBps    float64   `json:"vpn_download_bps"`
	VPNUploadBps      float64   `json:"vpn_upload_bps"`
	PhysDownloadBps   float64   `json:"phys_download_bps"`
	PhysUploadBps     float64   `json:"phys_upload_bps"`
	HasVPNTraffic     bool      `json:"has_vpn_traffic"`
	SplitTunnelLikely bool      `json:"split_tunnel_likely"`
}

// SystemSnapshot is one unsmoothed system-wide resource sample.
type SystemSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemUsedBytes  uint64    `json:"mem_used_bytes"`
	MemTotalBytes uint64    `json:"mem_total_bytes"`
	GPUPercent    *float64  `json:"gpu_percent,omitempty"`
}

// MemPercent derives memory utilization; 0 when totals are unknown.
func (s SystemSnapshot) MemPercent() float64 {
	if s.MemTotalBytes == 0 {
		return 0
	}
	return float64(s.MemUsedBytes) / float64(s.MemTotalBytes) * 100
}

// ProcessSnapshot is the per-process view handed to the presentation layer
// and to the per-app rollup. Byte figures are estimates derived from
// connection-table deltas, not measured traffic.
type ProcessSnapshot struct {
	PID              int32     `json:"pid"`
	Name             string    `json:"name"`
	ExePath          string    `json:"exe_path"`
	AppID            string    `json:"app_id"`
	DisplayName      string    `json:"display_name"`
	DownloadBps      float64   `json:"download_bps"`
	UploadBps        float64   `json:"upload_bps"`
	SessionBytesRecv uint64    `json:"session_bytes_recv"`
	SessionBytesSent uint64    `json:"session_bytes_sent"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryBytes      uint64    `json:"memory_bytes"`
	TCPConnections   int       `json:"tcp_connections"`
	UDPConnections   int       `json:"udp_connections"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Active           bool      `json:"active"`
}
