package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ErrInvalidRate indicates a non-positive sample rate.
var ErrInvalidRate = errors.New("invalid sample rate")

// Resampler converts mono audio between sample rates with linear interpolation.
//
// The fractional read position and the last input sample are carried across
// calls, so a stream may be resampled in arbitrary chunks. A Resampler belongs
// to one stream.
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64 // input samples per output sample
	position   float64 // read position relative to the next input chunk; -1 is lastSample
	lastSample float32
}

// NewResampler creates a resampler from inputRate to outputRate.
func NewResampler(inputRate, outputRate int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		logrus.WithFields(logrus.Fields{
			"function":    "NewResampler",
			"input_rate":  inputRate,
			"output_rate": outputRate,
			"error":       "invalid sample rates",
		}).Error("Sample rate validation failed")
		return nil, fmt.Errorf("%w: input=%d, output=%d", ErrInvalidRate, inputRate, outputRate)
	}

	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
		"ratio":       r.ratio,
	}).Debug("Audio resampler created")

	return r, nil
}

// InputRate returns the configured input rate.
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the configured output rate.
func (r *Resampler) OutputRate() int { return r.outputRate }

// Resample appends the resampled form of input to dst and returns it.
func (r *Resampler) Resample(dst, input []float32) []float32 {
	n := len(input)
	if n == 0 {
		return dst
	}
	if r.inputRate == r.outputRate {
		return append(dst, input...)
	}

	for r.position < float64(n-1) {
		i := int(math.Floor(r.position))
		frac := float32(r.position - float64(i))
		a := r.lastSample
		if i >= 0 {
			a = input[i]
		}
		b := input[i+1]
		dst = append(dst, a+(b-a)*frac)
		r.position += r.ratio
	}

	r.position -= float64(n)
	r.lastSample = input[n-1]
	return dst
}

// Reset forgets the stream position.
func (r *Resampler) Reset() {
	r.position = 0
	r.lastSample = 0
}
