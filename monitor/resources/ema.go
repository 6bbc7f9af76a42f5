package resources

// EMA is an asymmetric exponential moving average: rising values are taken
// up with AlphaUp so spikes become visible quickly, falling values with the
// smaller AlphaDown so transient drops do not flicker. The first observation
// is not smoothed.
type EMA struct {
	AlphaUp   float64
	AlphaDown float64

	value       float64
	initialized bool
}

func (e *EMA) Add(raw float64) float64 {
	if !e.initialized {
		e.value = raw
		e.initialized = true
		return e.value
	}
	alpha := e.AlphaDown
	if raw > e.value {
		alpha = e.AlphaUp
	}
	e.value = e.value*(1-alpha) + raw*alpha
	return e.value
}

func (e *EMA) Value() float64 {
	return e.value
}
