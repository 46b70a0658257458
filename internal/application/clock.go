package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
	// After delivers once d has elapsed. The poller waits on it between polls.
	After(d time.Duration) <-chan time.Time
}

// SystemClock implementasi default, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
