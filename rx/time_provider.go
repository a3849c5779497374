package rx

import "time"

// TimeProvider is the clock a Receiver times its analysis with. The measured
// durations feed AverageRxTimeMs, LastAnalysis and the PayloadReceived
// observer callback; tests substitute a fixed clock to make them exact.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider reads the wall clock.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }
