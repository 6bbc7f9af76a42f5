package resources

import "github.com/netglance/netglance/share/models"

// sampleRing is a bounded FIFO of system samples: once full, admitting the
// newest drops the oldest. Samples stay in arrival order.
type sampleRing struct {
	buf []models.SystemSnapshot
	cap int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]models.SystemSnapshot, 0, capacity), cap: capacity}
}

func (r *sampleRing) push(s models.SystemSnapshot) {
	if len(r.buf) == r.cap {
		copy(r.buf, r.buf[1:])
		r.buf = r.buf[:len(r.buf)-1]
	}
	r.buf = append(r.buf, s)
}

func (r *sampleRing) len() int {
	return len(r.buf)
}

// drainBefore removes and returns all samples with a timestamp before the
// cutoff. Arrival order is chronological, so this is a prefix cut.
func (r *sampleRing) drainBefore(cutoff int64) []models.SystemSnapshot {
	n := 0
	for n < len(r.buf) && r.buf[n].Timestamp.Unix() < cutoff {
		n++
	}
	if n == 0 {
		return nil
	}
	drained := make([]models.SystemSnapshot, n)
	copy(drained, r.buf[:n])
	r.buf = append(r.buf[:0], r.buf[n:]...)
	return drained
}

// pushFront re-admits previously drained samples at the head, keeping
// chronological order; overflow drops from the head (the oldest samples).
func (r *sampleRing) pushFront(samples []models.SystemSnapshot) {
	merged := append(append(make([]models.SystemSnapshot, 0, len(samples)+len(r.buf)), samples...), r.buf...)
	if len(merged) > r.cap {
		merged = merged[len(merged)-r.cap:]
	}
	r.buf = merged
}

func (r *sampleRing) drainAll() []models.SystemSnapshot {
	drained := make([]models.SystemSnapshot, len(r.buf))
	copy(drained, r.buf)
	r.buf = r.buf[:0]
	return drained
}
