package queuekit

import "time"

// BackoffStrategy decides how long auto-sync waits before another pass while
// transient failures persist
type BackoffStrategy interface {
	// NextDelay returns the delay before retry attempt n (0-based)
	NextDelay(attempt int) time.Duration

	// Reset is called after a pass with no transient failures
	Reset()
}

// ExponentialBackoff multiplies InitialDelay by Multiplier per attempt, capped at MaxDelay
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff is used by auto-sync unless overridden
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= eb.Multiplier
		// stop early, the cap applies anyway
		if time.Duration(float64(eb.InitialDelay)*multiplier) > eb.MaxDelay {
			break
		}
	}

	result := time.Duration(float64(eb.InitialDelay) * multiplier)
	if eb.MaxDelay > 0 && result > eb.MaxDelay {
		result = eb.MaxDelay
	}
	return result
}

func (eb *ExponentialBackoff) Reset() {}
