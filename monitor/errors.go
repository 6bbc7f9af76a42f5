package monitor

import "fmt"

// CapabilityError marks a platform or privilege gap: the affected feature is
// disabled and reported once instead of being retried every tick.
type CapabilityError struct {
	Feature           string
	RequiresElevation bool
	Err               error
}

func (e *CapabilityError) Error() string {
	if e.RequiresElevation {
		return fmt.Sprintf("%s unavailable, elevation required: %v", e.Feature, e.Err)
	}
	return fmt.Sprintf("%s unavailable on this platform: %v", e.Feature, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}
