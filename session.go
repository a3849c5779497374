package tonemodem

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tonemodem/dsp"
	"github.com/opd-ai/tonemodem/ecc"
	"github.com/opd-ai/tonemodem/protocol"
	"github.com/opd-ai/tonemodem/rx"
	"github.com/opd-ai/tonemodem/tx"
)

// QueueAudioFunc receives one synthesized frame of encoded samples. The
// buffer is reused for the next frame and must not be retained.
type QueueAudioFunc func(data []byte)

// DequeueAudioFunc fills buf with up to len(buf) bytes of captured samples and
// returns how many bytes it wrote. Returning 0 means no audio is available yet.
type DequeueAudioFunc func(buf []byte) int

const maxFrameBytes = protocol.MaxSamplesPerFrame * 4

// Session is one modem instance owning every buffer it uses.
//
// A Session is driven by a single goroutine: Send and Receive run to completion
// for the audio at hand and return. Concurrent calls must be serialized by the
// caller.
type Session struct {
	id       uuid.UUID
	observer Observer
	clock    TimeProvider
	factory  ecc.Factory

	d    protocol.Derived
	mode protocol.TxMode

	codec    *ecc.Adapter
	synth    *tx.Synthesizer
	analyzer *dsp.Analyzer
	receiver *rx.Receiver

	outFrame dsp.AmplitudeData
	outBytes [maxFrameBytes]byte

	inBytes  [maxFrameBytes]byte
	inFilled int
	inFrame  dsp.AmplitudeData
}

// New creates a Session for the given stream configuration with the default
// protocol parameters in fixed-length mode.
//
// Parameters:
//   - cfg: Sample rates, frame size and sample formats of the audio streams
//   - opts: Optional codec factory, observer and time provider
//
// Returns:
//   - *Session: The new session
//   - error: protocol.ErrInvalidStreamConfig if cfg is unusable
func New(cfg protocol.StreamConfig, opts ...Option) (*Session, error) {
	d, err := protocol.Derive(cfg, protocol.DefaultParams())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    err.Error(),
		}).Error("Session creation failed")
		return nil, err
	}

	s := &Session{
		id:       uuid.New(),
		observer: nopObserver{},
		clock:    DefaultTimeProvider{},
		d:        d,
		mode:     protocol.FixedLength,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.codec = ecc.NewAdapter(s.factory)
	s.synth = tx.New(d, s.codec)
	s.analyzer = dsp.NewAnalyzer(d.SamplesPerFrame)
	s.receiver = rx.New(d, s.mode, s.codec, s.analyzer, s.clock)

	logrus.WithFields(logrus.Fields{
		"function":          "New",
		"session":           s.id.String(),
		"sample_rate_in":    cfg.SampleRateIn,
		"sample_rate_out":   cfg.SampleRateOut,
		"samples_per_frame": cfg.SamplesPerFrame,
		"sample_size_in":    cfg.SampleSizeBytesIn,
		"sample_size_out":   cfg.SampleSizeBytesOut,
	}).Info("Session created")

	return s, nil
}

// SetParameters changes the tone plan and timing. On failure the previous
// parameters stay active. On success any pending transmission and any capture
// in progress are dropped.
//
// Parameters:
//   - freqDelta: Bins between neighbouring bit positions (>= 2)
//   - freqStart: Bin of the bit-1 tone of position 0
//   - framesPerTx: Frames each data group is repeated for
//   - bytesPerTx: Bytes carried by one data group
//   - volume: Output level in percent (1..100)
//
// Returns:
//   - error: A wrapped protocol sentinel error describing the rejected value
func (s *Session) SetParameters(freqDelta, freqStart, framesPerTx, bytesPerTx, volume int) error {
	p := protocol.Params{
		FreqDelta:   freqDelta,
		FreqStart:   freqStart,
		FramesPerTx: framesPerTx,
		BytesPerTx:  bytesPerTx,
		Volume:      volume,
	}
	d, err := protocol.Derive(s.d.Stream, p)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.SetParameters",
			"session":  s.id.String(),
			"error":    err.Error(),
		}).Error("Parameters rejected")
		return fmt.Errorf("set parameters: %w", err)
	}

	s.d = d
	s.synth.SetDerived(d)
	s.receiver.Reset(d, s.mode)
	s.inFilled = 0

	logrus.WithFields(logrus.Fields{
		"function":      "Session.SetParameters",
		"session":       s.id.String(),
		"freq_delta":    freqDelta,
		"freq_start":    freqStart,
		"frames_per_tx": framesPerTx,
		"bytes_per_tx":  bytesPerTx,
		"volume":        volume,
	}).Info("Parameters set")
	return nil
}

// SetTxMode selects fixed- or variable-length framing for both directions.
// Changing the mode abandons a capture in progress.
func (s *Session) SetTxMode(mode protocol.TxMode) {
	if mode == s.mode {
		return
	}
	s.mode = mode
	s.receiver.Reset(s.d, mode)
	s.inFilled = 0

	logrus.WithFields(logrus.Fields{
		"function": "Session.SetTxMode",
		"session":  s.id.String(),
		"mode":     mode.String(),
	}).Info("Tx mode set")
}

// Init prepares text for transmission and resets the receive side.
//
// Parameters:
//   - text: Payload of at most protocol.MaxLength bytes; fixed-length mode
//     keeps the first protocol.DefaultFixedLength bytes and pads the rest of
//     the slot with zeros, which the receiver strips, so a fixed-length payload
//     ending in 0x00 bytes is received without them
//
// Returns:
//   - error: protocol.ErrPayloadTooLarge, with no state change, if text is too long
func (s *Session) Init(text []byte) error {
	if err := s.synth.Init(s.mode, text); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Init",
			"session":  s.id.String(),
			"length":   len(text),
			"error":    err.Error(),
		}).Error("Init failed")
		return fmt.Errorf("init: %w", err)
	}

	s.receiver.Reset(s.d, s.mode)
	s.inFilled = 0

	logrus.WithFields(logrus.Fields{
		"function":     "Session.Init",
		"session":      s.id.String(),
		"mode":         s.mode.String(),
		"length":       len(text),
		"total_frames": s.synth.TotalFrames(),
	}).Info("Payload queued")
	return nil
}

// Send emits every remaining frame of the prepared transmission through queue.
// It does nothing when no transmission is pending.
func (s *Session) Send(queue QueueAudioFunc) {
	if !s.synth.HasData() {
		return
	}

	out := s.outFrame[:s.d.SamplesPerFrameOut]
	size := s.d.Stream.SampleSizeBytesOut
	frames := 0
	for s.synth.NextFrame(out) {
		n := dsp.EncodeSamples(s.outBytes[:], out, size)
		queue(s.outBytes[:n])
		s.observer.FrameSent()
		frames++
	}
	s.observer.PayloadSent(len(s.synth.Payload()))

	logrus.WithFields(logrus.Fields{
		"function": "Session.Send",
		"session":  s.id.String(),
		"frames":   frames,
	}).Info("Transmission complete")
}

// Receive pulls captured audio through dequeue until it reports no more data
// or a payload has been received. Partial frames are kept for the next call.
// While a received payload has not been taken, Receive pulls nothing.
func (s *Session) Receive(dequeue DequeueAudioFunc) {
	frameBytes := s.d.SamplesPerFrame * s.d.Stream.SampleSizeBytesIn
	for !s.receiver.HasData() {
		buf := s.inBytes[s.inFilled:frameBytes]
		n := dequeue(buf)
		if n <= 0 {
			return
		}
		s.inFilled += min(n, len(buf))
		if s.inFilled < frameBytes {
			continue
		}

		dsp.DecodeSamples(s.inFrame[:s.d.SamplesPerFrame], s.inBytes[:frameBytes], s.d.Stream.SampleSizeBytesIn)
		s.inFilled = 0
		s.handle(s.receiver.ProcessFrame(s.inFrame[:s.d.SamplesPerFrame]))
	}
}

func (s *Session) handle(ev rx.Event) {
	switch ev {
	case rx.EventMarkerDetected:
		s.observer.MarkerDetected()
	case rx.EventPayloadReceived:
		s.observer.PayloadReceived(len(s.receiver.RxData()), s.receiver.LastAnalysis())
		logrus.WithFields(logrus.Fields{
			"function": "Session.Receive",
			"session":  s.id.String(),
			"length":   len(s.receiver.RxData()),
		}).Info("Payload received")
	case rx.EventDecodeFailed:
		s.observer.DecodeFailed(false)
	case rx.EventSyncLost:
		s.observer.DecodeFailed(true)
	}
}

// TakeRxData copies the received payload into dst, clears the pending flag so
// Receive resumes, and returns the number of bytes copied.
func (s *Session) TakeRxData(dst []byte) int {
	return s.receiver.TakeRxData(dst)
}

// HasData reports whether a transmission is waiting for Send or a received
// payload is waiting to be taken.
func (s *Session) HasData() bool {
	return s.synth.HasData() || s.receiver.HasData()
}

// FramesToRecord is the length of the capture in progress or, when the
// receiver is idle, the number of data frames of the prepared transmission.
func (s *Session) FramesToRecord() int {
	if s.receiver.State() != rx.Idle {
		return s.receiver.FramesToRecord()
	}
	return s.synth.FramesToRecord()
}

// FramesLeftToRecord is the number of frames the capture in progress still needs.
func (s *Session) FramesLeftToRecord() int { return s.receiver.FramesLeftToRecord() }

// FramesToAnalyze is the number of candidate offsets of the running analysis.
func (s *Session) FramesToAnalyze() int { return s.receiver.FramesToAnalyze() }

// FramesLeftToAnalyze is the number of candidate offsets not yet rejected.
func (s *Session) FramesLeftToAnalyze() int { return s.receiver.FramesLeftToAnalyze() }

// SamplesPerFrame is the input frame size in samples.
func (s *Session) SamplesPerFrame() int { return s.d.SamplesPerFrame }

// SamplesPerFrameOut is the output frame size in samples.
func (s *Session) SamplesPerFrameOut() int { return s.d.SamplesPerFrameOut }

// SampleSizeBytesIn is the size of one captured sample.
func (s *Session) SampleSizeBytesIn() int { return s.d.Stream.SampleSizeBytesIn }

// SampleSizeBytesOut is the size of one emitted sample.
func (s *Session) SampleSizeBytesOut() int { return s.d.Stream.SampleSizeBytesOut }

// SampleRateIn is the capture sample rate.
func (s *Session) SampleRateIn() int { return s.d.Stream.SampleRateIn }

// SampleRateOut is the playback sample rate.
func (s *Session) SampleRateOut() int { return s.d.Stream.SampleRateOut }

// TotalBytesCaptured is the length of the last received payload.
func (s *Session) TotalBytesCaptured() int { return s.receiver.TotalBytesCaptured() }

// AverageRxTimeMs is the mean analysis time of successful receptions.
func (s *Session) AverageRxTimeMs() float64 { return s.receiver.AverageRxTimeMs() }

// RxData returns the last received payload. The slice aliases session state
// and is overwritten by the next reception.
func (s *Session) RxData() []byte { return s.receiver.RxData() }

// RxState returns the receive state.
func (s *Session) RxState() rx.State { return s.receiver.State() }

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// TxMode returns the framing mode.
func (s *Session) TxMode() protocol.TxMode { return s.mode }

// Params returns the active protocol parameters.
func (s *Session) Params() protocol.Params { return s.d.Params }

// Derived returns the constants computed from the active parameters.
func (s *Session) Derived() protocol.Derived { return s.d }

// FrameDuration is the playing time of one frame.
func (s *Session) FrameDuration() time.Duration {
	return time.Duration(float64(s.d.SamplesPerFrame) / s.d.SampleRateIn * float64(time.Second))
}
