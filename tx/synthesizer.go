package tx

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tonemodem/dsp"
	"github.com/opd-ai/tonemodem/ecc"
	"github.com/opd-ai/tonemodem/protocol"
)

const twoPi = 2 * math.Pi

// Synthesizer generates the audio frames of one transmission at a time.
// It is not safe for concurrent use.
type Synthesizer struct {
	d     protocol.Derived
	codec *ecc.Adapter

	layout protocol.Layout

	txData        [protocol.MaxDataSize]byte
	txLen         int
	txDataEncoded [protocol.MaxDataSize]byte
	encodedLen    int

	dataBits     [protocol.MaxDataBits]bool
	phaseOffsets [protocol.MaxDataBits]float64

	// per position: sin/cos of the bit-1 and bit-0 tone over one output frame,
	// and the phase each tone advances per frame
	bit1Amplitude  [protocol.MaxDataBits]dsp.AmplitudeData
	bit1Quadrature [protocol.MaxDataBits]dsp.AmplitudeData
	bit0Amplitude  [protocol.MaxDataBits]dsp.AmplitudeData
	bit0Quadrature [protocol.MaxDataBits]dsp.AmplitudeData
	bit1Step       [protocol.MaxDataBits]float64
	bit0Step       [protocol.MaxDataBits]float64
	templatesValid bool

	frameID     int
	totalFrames int
	hasData     bool
}

// New creates a synthesizer for the given derived parameters.
func New(d protocol.Derived, codec *ecc.Adapter) *Synthesizer {
	return &Synthesizer{d: d, codec: codec}
}

// SetDerived installs new parameters, invalidates the waveform templates and
// drops any pending transmission.
func (s *Synthesizer) SetDerived(d protocol.Derived) {
	s.d = d
	s.templatesValid = false
	s.hasData = false
	s.frameID = 0
	s.totalFrames = 0
}

// Init prepares a transmission of payload in the given mode. A payload longer
// than MaxLength is rejected without touching the current state. In fixed mode
// payloads longer than DefaultFixedLength are truncated.
func (s *Synthesizer) Init(mode protocol.TxMode, payload []byte) error {
	if len(payload) > protocol.MaxLength {
		logrus.WithFields(logrus.Fields{
			"function": "Synthesizer.Init",
			"length":   len(payload),
			"max":      protocol.MaxLength,
		}).Error("Payload rejected")
		return fmt.Errorf("%w: %d bytes, max %d", protocol.ErrPayloadTooLarge, len(payload), protocol.MaxLength)
	}

	layout := protocol.LayoutFor(mode, len(payload))
	n, err := s.encode(layout, payload)
	if err != nil {
		s.hasData = false
		return err
	}

	padded := s.d.PaddedLen(layout)
	clear(s.txDataEncoded[n:padded])
	s.encodedLen = padded
	s.layout = layout

	if !s.templatesValid {
		s.buildTemplates()
	}
	for k := range s.phaseOffsets {
		s.phaseOffsets[k] = math.Pi * float64(k) / float64(s.d.NDataBitsPerTx)
	}

	s.frameID = 0
	s.totalFrames = s.d.TotalFrames(layout)
	s.hasData = true

	logrus.WithFields(logrus.Fields{
		"function":     "Synthesizer.Init",
		"mode":         mode.String(),
		"length":       len(payload),
		"encoded_len":  n,
		"total_frames": s.totalFrames,
	}).Debug("Transmission prepared")

	return nil
}

func (s *Synthesizer) encode(layout protocol.Layout, payload []byte) (int, error) {
	s.txLen = copy(s.txData[:], payload)

	if layout.Mode == protocol.FixedLength {
		if len(payload) > protocol.DefaultFixedLength {
			logrus.WithFields(logrus.Fields{
				"function": "Synthesizer.encode",
				"length":   len(payload),
				"slot":     protocol.DefaultFixedLength,
			}).Warn("Payload truncated to fixed-length slot")
			s.txLen = protocol.DefaultFixedLength
		}
		clear(s.txData[s.txLen:protocol.DefaultFixedLength])
		return s.codec.EncodePayload(s.txDataEncoded[:], s.txData[:protocol.DefaultFixedLength], layout.PayloadECC)
	}

	if err := s.codec.EncodeLength(s.txDataEncoded[:protocol.EncodedLengthBytes], s.txLen); err != nil {
		return 0, err
	}
	if !layout.HasPayloadBlock() {
		return layout.LengthBytes, nil
	}
	n, err := s.codec.EncodePayload(s.txDataEncoded[layout.LengthBytes:], s.txData[:s.txLen], layout.PayloadECC)
	return layout.LengthBytes + n, err
}

func (s *Synthesizer) buildTemplates() {
	n := s.d.SamplesPerFrameOut
	for k := 0; k < s.d.TonePositions(); k++ {
		s.bit1Step[k] = fillTone(&s.bit1Amplitude[k], &s.bit1Quadrature[k], s.d.BitOneHz(k), s.d.SampleRateOut, n)
		s.bit0Step[k] = fillTone(&s.bit0Amplitude[k], &s.bit0Quadrature[k], s.d.BitZeroHz(k), s.d.SampleRateOut, n)
	}
	s.templatesValid = true
}

// fillTone writes sin and cos of a tone starting at phase 0 and returns the
// phase the tone advances over n samples.
func fillTone(sinT, cosT *dsp.AmplitudeData, hz, rate float64, n int) float64 {
	w := twoPi * hz / rate
	for i := 0; i < n; i++ {
		sn, cs := math.Sincos(w * float64(i))
		sinT[i] = float32(sn)
		cosT[i] = float32(cs)
	}
	return math.Mod(w*float64(n), twoPi)
}

// NextFrame writes the next frame of the transmission into out, which must hold
// SamplesPerFrameOut samples. It returns false once the transmission is over.
func (s *Synthesizer) NextFrame(out []float32) bool {
	if !s.hasData || s.frameID >= s.totalFrames {
		s.hasData = false
		return false
	}

	out = out[:s.d.SamplesPerFrameOut]
	clear(out)

	dataFrames := s.d.DataFrames(s.layout)
	switch {
	case s.frameID < s.d.NMarkerFrames:
		amp := s.d.SendVolume / float64(s.d.NBitsInMarker)
		for i := 0; i < s.d.NBitsInMarker; i++ {
			s.addTone(out, i, i%2 == 0, amp)
		}
	case s.frameID < s.d.NMarkerFrames+dataFrames:
		group := (s.frameID - s.d.NMarkerFrames) / s.d.FramesPerTx
		s.loadBits(group)
		amp := s.d.SendVolume / float64(s.d.NDataBitsPerTx)
		for k := 0; k < s.d.NDataBitsPerTx; k++ {
			s.addTone(out, k, s.dataBits[k], amp)
		}
	default:
		amp := s.d.SendVolume / float64(s.d.NBitsInMarker)
		for i := 0; i < s.d.NBitsInMarker; i++ {
			s.addTone(out, i, i%2 == 1, amp)
		}
	}

	if s.frameID++; s.frameID >= s.totalFrames {
		s.hasData = false
	}
	return true
}

func (s *Synthesizer) loadBits(group int) {
	base := group * s.d.BytesPerTx
	for j := 0; j < s.d.BytesPerTx; j++ {
		b := s.txDataEncoded[base+j]
		for i := 0; i < 8; i++ {
			s.dataBits[8*j+i] = b&(1<<i) != 0
		}
	}
}

// addTone mixes position k's bit-1 or bit-0 tone into out, continuing from the
// position's current phase: sin(p + wi) = sin(p)cos(wi) + cos(p)sin(wi).
func (s *Synthesizer) addTone(out []float32, k int, one bool, amp float64) {
	sinT, cosT, step := &s.bit0Amplitude[k], &s.bit0Quadrature[k], s.bit0Step[k]
	if one {
		sinT, cosT, step = &s.bit1Amplitude[k], &s.bit1Quadrature[k], s.bit1Step[k]
	}

	sp, cp := math.Sincos(s.phaseOffsets[k])
	a := float32(amp * sp)
	b := float32(amp * cp)
	for i := range out {
		out[i] += a*cosT[i] + b*sinT[i]
	}
	s.phaseOffsets[k] = math.Mod(s.phaseOffsets[k]+step, twoPi)
}

// HasData reports whether frames remain to be sent.
func (s *Synthesizer) HasData() bool { return s.hasData }

// FramesToRecord is the number of data frames in the current transmission.
func (s *Synthesizer) FramesToRecord() int { return s.d.DataFrames(s.layout) }

// TotalFrames is the full length of the current transmission in frames.
func (s *Synthesizer) TotalFrames() int { return s.totalFrames }

// FrameID is the index of the next frame to be produced.
func (s *Synthesizer) FrameID() int { return s.frameID }

// Payload returns the data bytes of the current transmission after any
// fixed-length truncation. The slice aliases internal state.
func (s *Synthesizer) Payload() []byte { return s.txData[:s.txLen] }

// Layout returns the layout of the current transmission.
func (s *Synthesizer) Layout() protocol.Layout { return s.layout }

// Encoded returns the encoded bytes of the current transmission, padded to
// whole groups. The slice aliases internal state.
func (s *Synthesizer) Encoded() []byte { return s.txDataEncoded[:s.encodedLen] }

// Reset drops any pending transmission.
func (s *Synthesizer) Reset() {
	s.hasData = false
	s.frameID = 0
	s.totalFrames = 0
}
