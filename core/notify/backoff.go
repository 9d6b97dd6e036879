package notify

import "time"

// Backoff is a capped exponential delay.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Duration returns the delay before retry number attempt (0-based).
func (b Backoff) Duration(attempt int) time.Duration {
	d := b.Min
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
