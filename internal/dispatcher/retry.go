package dispatcher

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy computes delivery retry delays from the configured exponential
// schedule: base * multiplier^(attempt-1), capped at Max, jittered ±20%.
type RetryPolicy struct {
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait before retrying after the given attempt number
// (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	d *= 0.8 + 0.4*rand.Float64()
	return time.Duration(d)
}

// Exhausted reports whether the attempt number has used up the retry budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// MaxSpan is an upper bound on the total time a delivery can spend retrying.
// The receiver's dedup retention should cover it.
func (p RetryPolicy) MaxSpan() time.Duration {
	var total float64
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
		if p.Max > 0 && d > float64(p.Max) {
			d = float64(p.Max)
		}
		total += d * 1.2
	}
	return time.Duration(total)
}
