package pipeline

import "time"

// nextDelay is the wait before the next attempt after `failures` consecutive
// failed cycles. Exponential from base, capped at max. A server-supplied
// retry hint wins over the computed backoff when it is longer.
func nextDelay(base, max time.Duration, failures int, hint time.Duration) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if max <= 0 {
		max = 30 * time.Minute
	}
	if failures < 1 {
		failures = 1
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	if hint > delay {
		delay = hint
	}
	return delay
}
