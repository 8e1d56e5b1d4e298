package stream

import "time"

// backoffDelay returns base * 2^attempt capped at max. Attempt numbering
// starts at zero, so the first retry waits the base delay.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	// past 30 doublings the shift would overflow a Duration anyway
	if attempt > 30 {
		return max
	}
	d := base << uint(attempt)
	if max > 0 && (d > max || d < base) {
		return max
	}
	return d
}
