package protocol

import (
	"errors"
	"fmt"
)

const (
	// MaxSamplesPerFrame is the capacity of one audio frame buffer.
	MaxSamplesPerFrame = 1024

	// MaxDataBits is the largest number of tone positions in one frame.
	MaxDataBits = 256

	// MaxDataSize is the capacity of the payload and encoded byte buffers.
	MaxDataSize = 256

	// MaxLength is the longest payload accepted by Init.
	MaxLength = 140

	// MaxSpectrumHistory is the depth of the receiver's noise-averaging ring.
	MaxSpectrumHistory = 4

	// MaxRecordedFrames is the capacity of the receiver's capture buffer.
	MaxRecordedFrames = 64 * 10

	// DefaultFixedLength is the payload slot of fixed-length transmissions.
	DefaultFixedLength = 82

	// DefaultFixedECCBytes is the ECC byte count of fixed-length transmissions.
	DefaultFixedECCBytes = 32

	// LengthFieldBytes and LengthECCBytes make up the variable-length prefix.
	LengthFieldBytes = 1
	LengthECCBytes   = 2

	// EncodedLengthBytes is the on-air size of the variable-length prefix.
	EncodedLengthBytes = LengthFieldBytes + LengthECCBytes

	// MarkerBits is the number of tone positions carrying the marker pattern.
	MarkerBits = 16

	// MarkerFrames and PostMarkerFrames are the sync overhead around the data.
	MarkerFrames     = 16
	PostMarkerFrames = 16

	// PreRollFrames is how many raw frames the receiver keeps while scanning,
	// so that data frames which arrive before detection completes are not lost.
	PreRollFrames = MaxSpectrumHistory

	// MarkerLeadFrames is how many frames before the end of the start marker
	// detection can complete. The receiver needs MarkerFrames-MarkerLeadFrames
	// consecutive averaged spectra that match the marker, since the first
	// MaxSpectrumHistory-1 averages also hold frames from before the marker.
	MarkerLeadFrames = MaxSpectrumHistory - 1

	// SyncSlackFrames is recorded past the expected end of data.
	SyncSlackFrames = 2

	// MarkerRatio is how much stronger the expected tone of a marker pair must be
	// than the other tone in the averaged spectrum.
	MarkerRatio = 2.0
)

// Sentinel errors for configuration and payload validation.
var (
	// ErrInvalidStreamConfig indicates unusable sample rates, frame size or sample size.
	ErrInvalidStreamConfig = errors.New("invalid stream configuration")

	// ErrInvalidParameter indicates a non-positive or out-of-range protocol knob.
	ErrInvalidParameter = errors.New("invalid protocol parameter")

	// ErrToneOutOfRange indicates a tone bin outside [1, SamplesPerFrame/2).
	ErrToneOutOfRange = errors.New("tone outside analyzable band")

	// ErrTooManyBits indicates more simultaneous bits than MaxDataBits.
	ErrTooManyBits = errors.New("too many simultaneous data bits")

	// ErrRecordingTooLong indicates a worst-case capture larger than MaxRecordedFrames.
	ErrRecordingTooLong = errors.New("transmission exceeds recording capacity")

	// ErrPayloadTooLarge indicates a payload longer than MaxLength.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// TxMode selects how the transmission length is determined.
type TxMode uint8

const (
	// FixedLength transmissions always carry DefaultFixedLength payload bytes.
	FixedLength TxMode = iota
	// VariableLength transmissions send an ECC-protected length prefix first.
	VariableLength
)

// String returns the mode name used in logs and configuration files.
func (m TxMode) String() string {
	switch m {
	case FixedLength:
		return "fixed"
	case VariableLength:
		return "variable"
	default:
		return fmt.Sprintf("TxMode(%d)", uint8(m))
	}
}

// ParseTxMode converts a configuration string into a TxMode.
func ParseTxMode(s string) (TxMode, error) {
	switch s {
	case "", "fixed":
		return FixedLength, nil
	case "variable":
		return VariableLength, nil
	}
	return FixedLength, fmt.Errorf("%w: unknown tx mode %q", ErrInvalidParameter, s)
}

// StreamConfig holds the construction-time audio stream properties.
type StreamConfig struct {
	SampleRateIn       int // capture rate in Hz
	SampleRateOut      int // playback rate in Hz
	SamplesPerFrame    int // analysis frame size at SampleRateIn
	SampleSizeBytesIn  int // 2 = int16 PCM, 4 = float32
	SampleSizeBytesOut int // 2 = int16 PCM, 4 = float32
}

// DefaultStreamConfig returns a 48 kHz float32 stream with 1024-sample frames.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRateIn:       48000,
		SampleRateOut:      48000,
		SamplesPerFrame:    1024,
		SampleSizeBytesIn:  4,
		SampleSizeBytesOut: 4,
	}
}

// SamplesPerFrameOut is the synthesized frame size at SampleRateOut.
func (c StreamConfig) SamplesPerFrameOut() int {
	if c.SampleRateIn <= 0 {
		return 0
	}
	return int(float64(c.SamplesPerFrame)*float64(c.SampleRateOut)/float64(c.SampleRateIn) + 0.5)
}

// Validate checks the stream properties against the engine capacities.
func (c StreamConfig) Validate() error {
	if c.SampleRateIn <= 0 || c.SampleRateOut <= 0 {
		return fmt.Errorf("%w: sample rates in=%d out=%d", ErrInvalidStreamConfig, c.SampleRateIn, c.SampleRateOut)
	}
	if c.SamplesPerFrame < 64 || c.SamplesPerFrame > MaxSamplesPerFrame {
		return fmt.Errorf("%w: samples per frame %d not in [64, %d]", ErrInvalidStreamConfig, c.SamplesPerFrame, MaxSamplesPerFrame)
	}
	if out := c.SamplesPerFrameOut(); out < 1 || out > MaxSamplesPerFrame {
		return fmt.Errorf("%w: output frame size %d not in [1, %d]", ErrInvalidStreamConfig, out, MaxSamplesPerFrame)
	}
	if !validSampleSize(c.SampleSizeBytesIn) || !validSampleSize(c.SampleSizeBytesOut) {
		return fmt.Errorf("%w: sample sizes in=%d out=%d (want 2 or 4)", ErrInvalidStreamConfig, c.SampleSizeBytesIn, c.SampleSizeBytesOut)
	}
	return nil
}

func validSampleSize(n int) bool {
	return n == 2 || n == 4
}

// Params holds the tunable protocol knobs.
type Params struct {
	FreqDelta   int // bins between neighbouring bit positions
	FreqStart   int // bin of bit position 0
	FramesPerTx int // repetitions of each data group
	BytesPerTx  int // bytes carried by one data group
	Volume      int // 1..100
}

// DefaultParams returns the protocol defaults.
func DefaultParams() Params {
	return Params{
		FreqDelta:   6,
		FreqStart:   40,
		FramesPerTx: 6,
		BytesPerTx:  2,
		Volume:      10,
	}
}

// ECCBytesForLength returns the ECC byte count for a variable-length payload of n bytes.
func ECCBytesForLength(n int) int {
	ecc := 2 * (n / 5)
	if ecc < 4 {
		return 4
	}
	return ecc
}

// Layout describes how one transmission's bytes are arranged on air. Both
// variants share the frame timing in Derived; they differ in where the length
// comes from and in their ECC sizes.
type Layout struct {
	Mode        TxMode
	PayloadLen  int // data bytes covered by the payload codec
	PayloadECC  int // ECC bytes appended by the payload codec
	LengthBytes int // encoded length prefix, 0 in fixed mode
}

// FixedLayout is the constant layout of fixed-length transmissions.
func FixedLayout() Layout {
	return Layout{
		Mode:       FixedLength,
		PayloadLen: DefaultFixedLength,
		PayloadECC: DefaultFixedECCBytes,
	}
}

// VariableLayout is the layout of a variable-length transmission of n bytes.
func VariableLayout(n int) Layout {
	return Layout{
		Mode:        VariableLength,
		PayloadLen:  n,
		PayloadECC:  ECCBytesForLength(n),
		LengthBytes: EncodedLengthBytes,
	}
}

// LayoutFor returns the layout of a payload of n bytes in the given mode.
func LayoutFor(mode TxMode, n int) Layout {
	if mode == VariableLength {
		return VariableLayout(n)
	}
	return FixedLayout()
}

// HasPayloadBlock reports whether the layout carries a payload codec block.
// An empty variable-length payload is sent as the length prefix alone.
func (l Layout) HasPayloadBlock() bool {
	return l.PayloadLen > 0
}

// EncodedLen is the number of bytes sent on air before group padding.
func (l Layout) EncodedLen() int {
	if !l.HasPayloadBlock() {
		return l.LengthBytes
	}
	return l.LengthBytes + l.PayloadLen + l.PayloadECC
}
