package rx

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tonemodem/dsp"
	"github.com/opd-ai/tonemodem/ecc"
	"github.com/opd-ai/tonemodem/protocol"
)

// State is the receive state.
type State uint8

const (
	// Idle scans incoming frames for the start marker.
	Idle State = iota
	// Recording accumulates frames of a synchronized transmission.
	Recording
	// Analyzing demodulates and decodes the recorded frames.
	Analyzing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Analyzing:
		return "analyzing"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Event reports what a processed frame caused.
type Event uint8

const (
	// EventNone means the frame changed nothing observable.
	EventNone Event = iota
	// EventMarkerDetected means a capture started.
	EventMarkerDetected
	// EventSyncLost means a variable-length capture had no decodable length.
	EventSyncLost
	// EventDecodeFailed means a capture could not be decoded.
	EventDecodeFailed
	// EventPayloadReceived means a payload was decoded and is available.
	EventPayloadReceived
)

const (
	// expectedStart is the recorded frame where data begins when the marker
	// run starts on the first marker frame, which is the case after silence.
	expectedStart = protocol.PreRollFrames + protocol.MarkerLeadFrames
	maxCandidate  = expectedStart + protocol.SyncSlackFrames
)

// candidates lists data-start offsets, in recorded frames, nearest-first around
// expectedStart. A run that starts later, because the frames before the marker
// were noisy or held another transmission's end marker, puts the data start up
// to MarkerLeadFrames earlier.
var candidates = func() []int {
	out := []int{expectedStart}
	for d := 1; len(out) <= maxCandidate; d++ {
		if c := expectedStart - d; c >= 0 {
			out = append(out, c)
		}
		if c := expectedStart + d; c <= maxCandidate {
			out = append(out, c)
		}
	}
	return out
}()

// Receiver recovers payloads from a stream of input frames.
// It is not safe for concurrent use.
type Receiver struct {
	d        protocol.Derived
	mode     protocol.TxMode
	codec    *ecc.Adapter
	analyzer *dsp.Analyzer
	clock    TimeProvider

	state     State
	markerRun int

	preRoll   [protocol.PreRollFrames]dsp.AmplitudeData
	preRollID int

	recordedAmplitude [protocol.MaxRecordedFrames * protocol.MaxSamplesPerFrame]float32
	recordedFrames    int

	framesToRecord      int
	framesLeftToRecord  int
	framesToAnalyze     int
	framesLeftToAnalyze int
	lengthKnown         bool
	payloadLen          int

	spectrum      dsp.SpectrumData
	bitOne        [protocol.MaxDataBits]float64
	bitZero       [protocol.MaxDataBits]float64
	rxDataEncoded [protocol.MaxDataSize]byte
	decoded       [protocol.MaxDataSize]byte

	rxData             [protocol.MaxDataSize]byte
	rxLen              int
	hasData            bool
	totalBytesCaptured int

	nCalls          int
	tSumMs          float64
	averageRxTimeMs float64
	lastAnalysis    time.Duration
}

// New creates a receiver. The analyzer must be sized to d.SamplesPerFrame.
func New(d protocol.Derived, mode protocol.TxMode, codec *ecc.Adapter, analyzer *dsp.Analyzer, clock TimeProvider) *Receiver {
	if clock == nil {
		clock = DefaultTimeProvider{}
	}
	return &Receiver{
		d:        d,
		mode:     mode,
		codec:    codec,
		analyzer: analyzer,
		clock:    clock,
	}
}

// Reset installs parameters and mode and returns to Idle, discarding any
// capture and any received payload.
func (r *Receiver) Reset(d protocol.Derived, mode protocol.TxMode) {
	r.d = d
	r.mode = mode
	r.toIdle()
	r.framesToRecord = 0
	for i := range r.preRoll {
		clear(r.preRoll[i][:])
	}
	r.preRollID = 0
	r.hasData = false
	r.rxLen = 0
	clear(r.rxData[:])
}

// ProcessFrame feeds one frame of SamplesPerFrame samples.
func (r *Receiver) ProcessFrame(frame []float32) Event {
	switch r.state {
	case Idle:
		return r.scan(frame)
	case Recording:
		return r.record(frame)
	}
	return EventNone
}

func (r *Receiver) scan(frame []float32) Event {
	n := r.d.SamplesPerFrame
	copy(r.preRoll[r.preRollID][:n], frame[:n])
	if r.preRollID++; r.preRollID >= protocol.PreRollFrames {
		r.preRollID = 0
	}

	if !r.matchesMarker(r.analyzer.Push(frame)) {
		r.markerRun = 0
		return EventNone
	}
	if r.markerRun++; r.markerRun < r.d.NMarkerFrames-protocol.MarkerLeadFrames {
		return EventNone
	}

	r.startRecording()
	return EventMarkerDetected
}

// matchesMarker checks that on every marker position the expected tone beats
// the other tone of its pair by MarkerRatio: bit-1 tones on even positions,
// bit-0 tones on odd ones.
func (r *Receiver) matchesMarker(spec *dsp.SpectrumData) bool {
	for i := 0; i < r.d.NBitsInMarker; i++ {
		one := spec[r.d.BitOneBin(i)]
		zero := spec[r.d.BitZeroBin(i)]
		if i%2 == 0 {
			if one <= protocol.MarkerRatio*zero {
				return false
			}
		} else if zero <= protocol.MarkerRatio*one {
			return false
		}
	}
	return true
}

func (r *Receiver) startRecording() {
	n := r.d.SamplesPerFrame
	for i := 0; i < protocol.PreRollFrames; i++ {
		src := &r.preRoll[(r.preRollID+i)%protocol.PreRollFrames]
		copy(r.recordedAmplitude[i*n:(i+1)*n], src[:n])
	}
	r.recordedFrames = protocol.PreRollFrames

	guess := protocol.FixedLayout()
	if r.mode == protocol.VariableLength {
		guess = protocol.VariableLayout(protocol.MaxLength)
	}
	r.framesToRecord = r.d.RecordFrames(guess)
	r.framesLeftToRecord = r.framesToRecord - r.recordedFrames
	r.lengthKnown = r.mode == protocol.FixedLength
	r.markerRun = 0
	r.state = Recording

	logrus.WithFields(logrus.Fields{
		"function":         "Receiver.startRecording",
		"mode":             r.mode.String(),
		"frames_to_record": r.framesToRecord,
	}).Info("Receiving sound data")
}

func (r *Receiver) record(frame []float32) Event {
	n := r.d.SamplesPerFrame
	off := r.recordedFrames * n
	copy(r.recordedAmplitude[off:off+n], frame[:n])
	r.recordedFrames++
	r.framesLeftToRecord--

	if !r.lengthKnown && r.recordedFrames >= maxCandidate+r.lengthGroups()*r.d.FramesPerTx {
		if !r.probeLength() {
			logrus.WithFields(logrus.Fields{
				"function":        "Receiver.record",
				"recorded_frames": r.recordedFrames,
			}).Info("Length field not decodable, synchronization lost")
			r.toIdle()
			return EventSyncLost
		}
	}

	if r.framesLeftToRecord <= 0 {
		return r.analyze()
	}
	return EventNone
}

func (r *Receiver) lengthGroups() int {
	return (protocol.EncodedLengthBytes + r.d.BytesPerTx - 1) / r.d.BytesPerTx
}

// probeLength decodes the length prefix at the first candidate offset that
// yields one and shrinks the capture to the announced transmission.
func (r *Receiver) probeLength() bool {
	for _, c := range candidates {
		n, ok := r.decodeLengthAt(c)
		if !ok {
			continue
		}
		r.lengthKnown = true
		r.payloadLen = n
		r.framesToRecord = r.d.RecordFrames(protocol.VariableLayout(n))
		r.framesLeftToRecord = r.framesToRecord - r.recordedFrames

		logrus.WithFields(logrus.Fields{
			"function":         "Receiver.probeLength",
			"length":           n,
			"offset":           c,
			"frames_to_record": r.framesToRecord,
		}).Debug("Decoded length field")
		return true
	}
	return false
}

func (r *Receiver) decodeLengthAt(c int) (int, bool) {
	lg := r.lengthGroups()
	if c+lg*r.d.FramesPerTx > r.recordedFrames {
		return 0, false
	}
	r.demodulate(c, 0, lg)
	return r.codec.DecodeLength(r.rxDataEncoded[:protocol.EncodedLengthBytes])
}

func (r *Receiver) analyze() Event {
	r.state = Analyzing
	start := r.clock.Now()

	r.framesToAnalyze = len(candidates)
	r.framesLeftToAnalyze = r.framesToAnalyze
	ok := false
	for _, c := range candidates {
		if ok = r.decodeAt(c); ok {
			break
		}
		r.framesLeftToAnalyze--
	}

	elapsed := r.clock.Since(start)
	r.toIdle()

	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.analyze",
			"mode":     r.mode.String(),
			"elapsed":  elapsed,
		}).Info("Failed to capture sound data")
		return EventDecodeFailed
	}

	r.hasData = true
	r.totalBytesCaptured = r.rxLen
	r.lastAnalysis = elapsed
	r.nCalls++
	r.tSumMs += float64(elapsed) / float64(time.Millisecond)
	r.averageRxTimeMs = r.tSumMs / float64(r.nCalls)

	logrus.WithFields(logrus.Fields{
		"function": "Receiver.analyze",
		"mode":     r.mode.String(),
		"length":   r.rxLen,
		"elapsed":  elapsed,
	}).Info("Received sound data successfully")
	return EventPayloadReceived
}

// decodeAt demodulates the capture assuming data starts at recorded frame c and
// publishes the payload on success.
func (r *Receiver) decodeAt(c int) bool {
	layout := protocol.FixedLayout()
	firstGroup := 0
	if r.mode == protocol.VariableLength {
		n, ok := r.decodeLengthAt(c)
		if !ok {
			return false
		}
		layout = protocol.VariableLayout(n)
		firstGroup = r.lengthGroups()
	}

	groups := r.d.Groups(layout)
	if c+groups*r.d.FramesPerTx > r.recordedFrames {
		return false
	}
	r.demodulate(c, firstGroup, groups)

	n := 0
	if layout.HasPayloadBlock() {
		block := r.rxDataEncoded[layout.LengthBytes:layout.EncodedLen()]
		if !r.codec.DecodePayload(r.decoded[:], block, layout.PayloadLen, layout.PayloadECC) {
			return false
		}
		n = layout.PayloadLen
	}
	if layout.Mode == protocol.FixedLength {
		for n > 0 && r.decoded[n-1] == 0 {
			n--
		}
	}

	r.rxLen = copy(r.rxData[:], r.decoded[:n])
	clear(r.rxData[n:])
	return true
}

// demodulate recovers groups [g0, g1) of a capture whose data starts at
// recorded frame c. Each group's interior frames are averaged per bin and each
// position's bit-1 bin is compared with its bit-0 bin.
func (r *Receiver) demodulate(c, g0, g1 int) {
	n := r.d.SamplesPerFrame
	fpt := r.d.FramesPerTx
	bits := r.d.NDataBitsPerTx

	first, last := 1, fpt-2
	if fpt < 3 {
		first, last = 0, fpt-1
	}
	norm := 1.0 / float64(last-first+1)

	for g := g0; g < g1; g++ {
		clear(r.bitOne[:bits])
		clear(r.bitZero[:bits])
		for f := first; f <= last; f++ {
			idx := c + g*fpt + f
			r.analyzer.Magnitude(r.recordedAmplitude[idx*n:(idx+1)*n], &r.spectrum)
			for k := 0; k < bits; k++ {
				r.bitOne[k] += r.spectrum[r.d.BitOneBin(k)]
				r.bitZero[k] += r.spectrum[r.d.BitZeroBin(k)]
			}
		}

		for j := 0; j < r.d.BytesPerTx; j++ {
			var b byte
			for i := 0; i < 8; i++ {
				k := 8*j + i
				if r.bitOne[k]*norm > r.bitZero[k]*norm {
					b |= 1 << i
				}
			}
			r.rxDataEncoded[g*r.d.BytesPerTx+j] = b
		}
	}
}

func (r *Receiver) toIdle() {
	r.state = Idle
	r.markerRun = 0
	r.recordedFrames = 0
	r.framesLeftToRecord = 0
	r.framesToAnalyze = 0
	r.framesLeftToAnalyze = 0
	r.lengthKnown = false
	r.payloadLen = 0
	r.analyzer.Reset()
}

// TakeRxData copies the received payload into dst, clears the has-data flag
// and returns the number of bytes copied.
func (r *Receiver) TakeRxData(dst []byte) int {
	n := copy(dst, r.rxData[:r.rxLen])
	r.hasData = false
	return n
}

// State returns the current receive state.
func (r *Receiver) State() State { return r.state }

// HasData reports whether a received payload is waiting.
func (r *Receiver) HasData() bool { return r.hasData }

// RxData returns the last received payload. The slice aliases internal state.
func (r *Receiver) RxData() []byte { return r.rxData[:r.rxLen] }

// RxBuffer returns the whole fixed-capacity receive buffer.
func (r *Receiver) RxBuffer() *[protocol.MaxDataSize]byte { return &r.rxData }

// FramesToRecord is the length of the current capture in frames.
func (r *Receiver) FramesToRecord() int { return r.framesToRecord }

// FramesLeftToRecord is the number of frames the current capture still needs.
func (r *Receiver) FramesLeftToRecord() int { return r.framesLeftToRecord }

// FramesToAnalyze is the number of candidate offsets of the running analysis.
func (r *Receiver) FramesToAnalyze() int { return r.framesToAnalyze }

// FramesLeftToAnalyze is the number of candidate offsets not yet rejected.
func (r *Receiver) FramesLeftToAnalyze() int { return r.framesLeftToAnalyze }

// TotalBytesCaptured is the length of the last received payload.
func (r *Receiver) TotalBytesCaptured() int { return r.totalBytesCaptured }

// AverageRxTimeMs is the mean analysis time of successful receptions.
func (r *Receiver) AverageRxTimeMs() float64 { return r.averageRxTimeMs }

// LastAnalysis is the analysis time of the last successful reception.
func (r *Receiver) LastAnalysis() time.Duration { return r.lastAnalysis }
