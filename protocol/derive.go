package protocol

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Derived holds every constant computed from a StreamConfig and Params.
// It is a plain value; Derive never mutates its inputs.
type Derived struct {
	Stream StreamConfig
	Params Params

	SampleRateIn       float64
	SampleRateOut      float64
	SamplesPerFrame    int
	SamplesPerFrameOut int
	ISamplesPerFrame   float64

	HzPerFrame  float64 // width of one FFT bin
	IHzPerFrame float64

	FreqDeltaHz   float64
	FreqStartHz   float64
	BitZeroOffset int // bins between a position's bit-1 and bit-0 tone
	SendVolume    float64

	NDataBitsPerTx    int
	BytesPerTx        int
	FramesPerTx       int
	NBitsInMarker     int
	NMarkerFrames     int
	NPostMarkerFrames int
}

// Derive validates p against cfg and computes the derived constants.
func Derive(cfg StreamConfig, p Params) (Derived, error) {
	if err := cfg.Validate(); err != nil {
		return Derived{}, err
	}
	if err := validateParams(cfg, p); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":      "Derive",
			"freq_delta":    p.FreqDelta,
			"freq_start":    p.FreqStart,
			"frames_per_tx": p.FramesPerTx,
			"bytes_per_tx":  p.BytesPerTx,
			"volume":        p.Volume,
			"error":         err.Error(),
		}).Error("Protocol parameter validation failed")
		return Derived{}, err
	}

	hz := float64(cfg.SampleRateIn) / float64(cfg.SamplesPerFrame)
	d := Derived{
		Stream:             cfg,
		Params:             p,
		SampleRateIn:       float64(cfg.SampleRateIn),
		SampleRateOut:      float64(cfg.SampleRateOut),
		SamplesPerFrame:    cfg.SamplesPerFrame,
		SamplesPerFrameOut: cfg.SamplesPerFrameOut(),
		ISamplesPerFrame:   1.0 / float64(cfg.SamplesPerFrame),
		HzPerFrame:         hz,
		IHzPerFrame:        1.0 / hz,
		FreqDeltaHz:        hz * float64(p.FreqDelta),
		FreqStartHz:        hz * float64(p.FreqStart),
		BitZeroOffset:      p.FreqDelta / 2,
		SendVolume:         float64(p.Volume) / 100.0,
		NDataBitsPerTx:     8 * p.BytesPerTx,
		BytesPerTx:         p.BytesPerTx,
		FramesPerTx:        p.FramesPerTx,
		NBitsInMarker:      MarkerBits,
		NMarkerFrames:      MarkerFrames,
		NPostMarkerFrames:  PostMarkerFrames,
	}
	return d, nil
}

func validateParams(cfg StreamConfig, p Params) error {
	if p.FreqDelta < 2 {
		return fmt.Errorf("%w: freq delta %d (min 2)", ErrInvalidParameter, p.FreqDelta)
	}
	if p.FreqStart < 1 {
		return fmt.Errorf("%w: freq start %d (min 1)", ErrInvalidParameter, p.FreqStart)
	}
	if p.FramesPerTx < 1 {
		return fmt.Errorf("%w: frames per tx %d (min 1)", ErrInvalidParameter, p.FramesPerTx)
	}
	if p.BytesPerTx < 1 {
		return fmt.Errorf("%w: bytes per tx %d (min 1)", ErrInvalidParameter, p.BytesPerTx)
	}
	if p.Volume < 1 || p.Volume > 100 {
		return fmt.Errorf("%w: volume %d not in [1, 100]", ErrInvalidParameter, p.Volume)
	}
	if 8*p.BytesPerTx > MaxDataBits {
		return fmt.Errorf("%w: %d bits per frame exceeds %d", ErrTooManyBits, 8*p.BytesPerTx, MaxDataBits)
	}

	positions := 8 * p.BytesPerTx
	if positions < MarkerBits {
		positions = MarkerBits
	}
	highest := p.FreqStart + (positions-1)*p.FreqDelta + p.FreqDelta/2
	if highest >= cfg.SamplesPerFrame/2 {
		return fmt.Errorf("%w: highest bin %d, limit %d", ErrToneOutOfRange, highest, cfg.SamplesPerFrame/2)
	}

	for _, l := range []Layout{FixedLayout(), VariableLayout(MaxLength)} {
		frames := PreRollFrames + MarkerLeadFrames + groupCount(l, p.BytesPerTx)*p.FramesPerTx + SyncSlackFrames
		if frames > MaxRecordedFrames {
			return fmt.Errorf("%w: %s mode needs %d frames, capacity %d", ErrRecordingTooLong, l.Mode, frames, MaxRecordedFrames)
		}
	}
	return nil
}

func groupCount(l Layout, bytesPerTx int) int {
	return (l.EncodedLen() + bytesPerTx - 1) / bytesPerTx
}

// Groups is the number of distinct data groups a layout occupies.
func (d Derived) Groups(l Layout) int {
	return groupCount(l, d.BytesPerTx)
}

// PaddedLen is the encoded length rounded up to whole groups.
func (d Derived) PaddedLen(l Layout) int {
	return d.Groups(l) * d.BytesPerTx
}

// DataFrames is the number of data frames a layout occupies on air.
func (d Derived) DataFrames(l Layout) int {
	return d.Groups(l) * d.FramesPerTx
}

// TotalFrames is the full transmission length in frames, markers included.
func (d Derived) TotalFrames(l Layout) int {
	return d.NMarkerFrames + d.DataFrames(l) + d.NPostMarkerFrames
}

// RecordFrames is how many frames the receiver captures for a layout.
func (d Derived) RecordFrames(l Layout) int {
	return PreRollFrames + MarkerLeadFrames + d.DataFrames(l) + SyncSlackFrames
}

// BitOneBin is the FFT bin of the bit-1 tone of position k.
func (d Derived) BitOneBin(k int) int {
	return d.Params.FreqStart + k*d.Params.FreqDelta
}

// BitZeroBin is the FFT bin of the bit-0 tone of position k.
func (d Derived) BitZeroBin(k int) int {
	return d.BitOneBin(k) + d.BitZeroOffset
}

// BitOneHz is the frequency of the bit-1 tone of position k.
func (d Derived) BitOneHz(k int) float64 {
	return d.FreqStartHz + float64(k)*d.FreqDeltaHz
}

// BitZeroHz is the frequency of the bit-0 tone of position k.
func (d Derived) BitZeroHz(k int) float64 {
	return d.BitOneHz(k) + float64(d.BitZeroOffset)*d.HzPerFrame
}

// TonePositions is the number of positions that need templates: data bits or
// marker bits, whichever is larger.
func (d Derived) TonePositions() int {
	if d.NDataBitsPerTx > d.NBitsInMarker {
		return d.NDataBitsPerTx
	}
	return d.NBitsInMarker
}
