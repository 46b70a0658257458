package cu

import (
	"math"
	"math/rand"
	"time"
)

const DefaultPollInterval = 2 * time.Second

// PollPolicy decides how long to wait after the attempt-th poll (0-based)
// returned a non-terminal status.
type PollPolicy interface {
	Next(attempt int) time.Duration
}

// FixedInterval waits the same amount after every poll.
type FixedInterval struct {
	Interval time.Duration
}

func (f FixedInterval) Next(int) time.Duration {
	if f.Interval <= 0 {
		return DefaultPollInterval
	}
	return f.Interval
}

// ExponentialBackoff grows the delay by Multiplier per attempt up to Max.
// Jitter in [0,1] shaves a random fraction off each delay.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// Rand returns a value in [0,1); nil uses math/rand/v2.
	Rand func() float64
}

func (e ExponentialBackoff) Next(attempt int) time.Duration {
	initial := e.Initial
	if initial <= 0 {
		initial = DefaultPollInterval
	}
	mult := e.Multiplier
	if mult < 1 {
		mult = 2
	}
	if attempt < 0 {
		attempt = 0
	}

	d := float64(initial) * math.Pow(mult, float64(attempt))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if d > math.MaxInt64 {
		d = math.MaxInt64
	}

	if j := math.Min(math.Max(e.Jitter, 0), 1); j > 0 {
		r := rand.Float64
		if e.Rand != nil {
			r = e.Rand
		}
		d -= d * j * r()
	}
	return time.Duration(d)
}

// NewPolicy maps a config name onto a policy. Unknown names fall back to fixed.
func NewPolicy(name string, interval, maxDelay time.Duration) PollPolicy {
	if name == "exponential" {
		return ExponentialBackoff{Initial: interval, Max: maxDelay, Multiplier: 2, Jitter: 0.2}
	}
	return FixedInterval{Interval: interval}
}
