package adapters

import "time"

// Category is the display classification of a discovered adapter.
type Category int

const (
	CategoryPhysical Category = iota
	CategoryVPN
	CategoryVirtualMachine
	CategoryContainer
)

func (c Category) String() string {
	switch c {
	case CategoryVPN:
		return "vpn"
	case CategoryVirtualMachine:
		return "virtual_machine"
	case CategoryContainer:
		return "container"
	default:
		return "physical"
	}
}

// Tethering marks adapters backed by a phone link.
type Tethering int

const (
	TetheringNone Tethering = iota
	TetheringUSB
	TetheringBluetooth
)

// Kind is the coarse interface type reported by the counter source. It only
// matters as a classification fallback for tunnels without a known provider.
type Kind int

const (
	KindOther Kind = iota
	KindTunnel
	KindPPP
)

// Counter is one adapter's raw cumulative reading from the counter source.
type Counter struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	IsUp        bool
	BytesIn     uint64
	BytesOut    uint64
}

// Classification is the result of matching an adapter against the rule table.
type Classification struct {
	Category    Category
	VPNProvider string
	IsVirtual   bool
	Tethering   Tethering
}

// State tracks one adapter across polls. States are owned by the Monitor and
// mutated only under its lock; callers get copies.
type State struct {
	ID          string
	Name        string
	Description string
	Classification

	LastBytesIn  uint64
	LastBytesOut uint64
	LastPoll     time.Time

	SessionBytesRecv uint64
	SessionBytesSent uint64

	DownloadBps float64
	UploadBps   float64
}

// TotalBps is the adapter's combined current throughput.
func (s *State) TotalBps() float64 {
	return s.DownloadBps + s.UploadBps
}
