package tonemodem

import (
	"time"

	"github.com/opd-ai/tonemodem/ecc"
	"github.com/opd-ai/tonemodem/rx"
)

// TimeProvider abstracts time for the receive latency statistics.
type TimeProvider = rx.TimeProvider

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider = rx.DefaultTimeProvider

// Observer is notified of session events. Calls happen on the goroutine that
// drives Send or Receive and must not block.
type Observer interface {
	// FrameSent is called after each frame handed to the queue callback.
	FrameSent()
	// PayloadSent is called when a transmission of n data bytes has been emitted.
	PayloadSent(n int)
	// MarkerDetected is called when a capture starts.
	MarkerDetected()
	// PayloadReceived is called after a payload of n bytes was decoded in analysis time.
	PayloadReceived(n int, analysis time.Duration)
	// DecodeFailed is called when a capture yields nothing; syncLost marks a
	// variable-length capture abandoned on an undecodable length.
	DecodeFailed(syncLost bool)
}

type nopObserver struct{}

func (nopObserver) FrameSent()                         {}
func (nopObserver) PayloadSent(int)                    {}
func (nopObserver) MarkerDetected()                    {}
func (nopObserver) PayloadReceived(int, time.Duration) {}
func (nopObserver) DecodeFailed(bool)                  {}

// Option configures a Session in New.
type Option func(*Session)

// WithCodecFactory replaces the Reed-Solomon codec, e.g. with ecc.NewPassThrough.
func WithCodecFactory(f ecc.Factory) Option {
	return func(s *Session) { s.factory = f }
}

// WithObserver registers an observer for session events.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTimeProvider injects the clock used for receive latency statistics.
func WithTimeProvider(tp TimeProvider) Option {
	return func(s *Session) {
		if tp != nil {
			s.clock = tp
		}
	}
}
