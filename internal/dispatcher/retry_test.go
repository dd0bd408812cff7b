package dispatcher

import (
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		Base:        time.Second,
		Multiplier:  2.0,
		Max:         60 * time.Second,
		MaxAttempts: 5,
	}

	tests := []struct {
		name    string
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{"first attempt", 1, 800 * time.Millisecond, 1200 * time.Millisecond},
		{"second attempt", 2, 1600 * time.Millisecond, 2400 * time.Millisecond},
		{"fourth attempt", 4, 6400 * time.Millisecond, 9600 * time.Millisecond},
		{"attempt below one clamps to one", 0, 800 * time.Millisecond, 1200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Jitter is random; sample enough draws to hit the bounds check.
			for i := 0; i < 50; i++ {
				d := policy.Delay(tt.attempt)
				if d < tt.min || d > tt.max {
					t.Fatalf("delay %v outside [%v, %v]", d, tt.min, tt.max)
				}
			}
		})
	}
}

func TestRetryPolicyDelayCap(t *testing.T) {
	policy := RetryPolicy{
		Base:        time.Second,
		Multiplier:  2.0,
		Max:         5 * time.Second,
		MaxAttempts: 10,
	}

	for i := 0; i < 50; i++ {
		d := policy.Delay(9)
		if d > 6*time.Second {
			t.Fatalf("capped delay %v exceeds max plus jitter", d)
		}
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}

	if policy.Exhausted(2) {
		t.Error("attempt 2 of 3 should not be exhausted")
	}
	if !policy.Exhausted(3) {
		t.Error("attempt 3 of 3 should be exhausted")
	}
	if !policy.Exhausted(4) {
		t.Error("attempt past the budget should be exhausted")
	}
}

func TestRetryPolicyMaxSpan(t *testing.T) {
	policy := RetryPolicy{
		Base:        time.Second,
		Multiplier:  2.0,
		Max:         60 * time.Second,
		MaxAttempts: 5,
	}

	// Worst case: (1+2+4+8) * 1.2 = 18s of waiting across four retries.
	want := time.Duration(float64(15*time.Second) * 1.2)
	if got := policy.MaxSpan(); got != want {
		t.Errorf("MaxSpan() = %v, want %v", got, want)
	}
}
