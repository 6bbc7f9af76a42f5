package procnet

import "time"

// Config carries the estimator heuristics. The byte figures produced are an
// estimate derived from connection-table deltas, not a measurement; these
// knobs exist so the approximation can be tuned or replaced by a real
// measurement backend without touching call sites.
type Config struct {
	// BytesPerConnChange converts one connection-table delta into estimated
	// traffic bytes.
	BytesPerConnChange uint64

	// DownloadShare is the fraction of estimated bytes attributed to
	// download; the remainder counts as upload.
	DownloadShare float64

	// IdleDecay multiplies both speeds on every poll without activity.
	IdleDecay float64

	// SpeedFloor zeroes a decayed speed below this threshold so idle
	// processes do not show a stuck trickle.
	SpeedFloor float64

	// CloseGrace is how long a closed process is kept before purging.
	CloseGrace time.Duration

	// MaxTracked caps the number of tracked processes; the surplus is
	// evicted oldest LastSeen first.
	MaxTracked int
}

func (c *Config) Normalize() {
	if c.BytesPerConnChange == 0 {
		c.BytesPerConnChange = 51200
	}
	if c.DownloadShare <= 0 || c.DownloadShare >= 1 {
		c.DownloadShare = 0.60
	}
	if c.IdleDecay <= 0 || c.IdleDecay >= 1 {
		c.IdleDecay = 0.5
	}
	if c.SpeedFloor <= 0 {
		c.SpeedFloor = 512
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = 30 * time.Second
	}
	if c.MaxTracked <= 0 {
		c.MaxTracked = 1000
	}
}
