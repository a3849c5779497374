// Package channel simulates the acoustic path between a transmitting and a
// receiving session.
//
// Effects operate on float32 samples in [-1, 1] and can be chained into a
// pipeline. They are used by tests and by the wav_modem example to check how
// a transmission survives gain changes, noise, lost samples and an unknown
// start offset.
package channel

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ErrInvalidEffect indicates an effect parameter outside its valid range.
var ErrInvalidEffect = errors.New("invalid effect parameter")

// Effect defines the interface for channel effects.
//
// Effects may modify samples in place; the returned slice is the one to use
// afterwards and may differ from the input when an effect changes its length.
type Effect interface {
	// Process applies the effect to samples.
	Process(samples []float32) ([]float32, error)

	// Name returns a human-readable name for the effect.
	Name() string
}

// Gain scales samples by a linear factor and clips the result to [-1, 1].
type Gain struct {
	gain float64
}

// NewGain creates a gain effect.
//
// Parameters:
//   - gain: Linear gain multiplier (0.0 = silence, 1.0 = unity, 2.0 = +6dB)
//
// Returns:
//   - *Gain: New gain effect instance
//   - error: Validation error if gain is negative
func NewGain(gain float64) (*Gain, error) {
	if gain < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "NewGain",
			"gain":     gain,
			"error":    "gain cannot be negative",
		}).Error("Gain validation failed")
		return nil, fmt.Errorf("%w: gain %f", ErrInvalidEffect, gain)
	}
	return &Gain{gain: gain}, nil
}

// Process applies the gain with clipping.
func (g *Gain) Process(samples []float32) ([]float32, error) {
	clipped := 0
	for i, s := range samples {
		v := float64(s) * g.gain
		switch {
		case v > 1:
			samples[i] = 1
			clipped++
		case v < -1:
			samples[i] = -1
			clipped++
		default:
			samples[i] = float32(v)
		}
	}

	if clipped > 0 {
		logrus.WithFields(logrus.Fields{
			"function":      "Gain.Process",
			"sample_count":  len(samples),
			"clipped_count": clipped,
			"gain":          g.gain,
		}).Debug("Samples clipped")
	}
	return samples, nil
}

// Name returns "gain".
func (g *Gain) Name() string { return "gain" }

// WhiteNoise adds Gaussian noise with a fixed standard deviation. The noise
// sequence is reproducible for a given seed.
type WhiteNoise struct {
	sigma float64
	rng   *rand.Rand
}

// NewWhiteNoise creates a noise source with standard deviation sigma.
func NewWhiteNoise(sigma float64, seed int64) (*WhiteNoise, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("%w: sigma %f", ErrInvalidEffect, sigma)
	}
	return &WhiteNoise{sigma: sigma, rng: rand.New(rand.NewSource(seed))}, nil
}

// Process adds noise to every sample.
func (w *WhiteNoise) Process(samples []float32) ([]float32, error) {
	for i := range samples {
		samples[i] += float32(w.rng.NormFloat64() * w.sigma)
	}
	return samples, nil
}

// Name returns "white_noise".
func (w *WhiteNoise) Name() string { return "white_noise" }

// Dropout zeroes the first length samples of every period samples, imitating
// an input device that loses buffers.
type Dropout struct {
	period int
	length int
	pos    int
}

// NewDropout creates a dropout effect. length must not exceed period.
func NewDropout(period, length int) (*Dropout, error) {
	if period <= 0 || length < 0 || length > period {
		return nil, fmt.Errorf("%w: dropout %d of every %d samples", ErrInvalidEffect, length, period)
	}
	return &Dropout{period: period, length: length}, nil
}

// Process zeroes the dropped samples. The position within the period carries
// over between calls.
func (d *Dropout) Process(samples []float32) ([]float32, error) {
	for i := range samples {
		if d.pos < d.length {
			samples[i] = 0
		}
		if d.pos++; d.pos >= d.period {
			d.pos = 0
		}
	}
	return samples, nil
}

// Name returns "dropout".
func (d *Dropout) Name() string { return "dropout" }

// Delay prepends silence, shifting the transmission against the receiver's
// frame grid. It applies once; later calls pass samples through.
type Delay struct {
	samples int
	done    bool
}

// NewDelay creates a delay of n samples.
func NewDelay(n int) (*Delay, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: delay %d", ErrInvalidEffect, n)
	}
	return &Delay{samples: n}, nil
}

// Process returns samples preceded by the delay on the first call.
func (d *Delay) Process(samples []float32) ([]float32, error) {
	if d.done {
		return samples, nil
	}
	d.done = true
	out := make([]float32, d.samples, d.samples+len(samples))
	return append(out, samples...), nil
}

// Name returns "delay".
func (d *Delay) Name() string { return "delay" }

// Chain applies effects in order.
//
// Processing stops at the first effect that fails and its error is returned.
type Chain struct {
	effects []Effect
}

// NewChain creates a chain of the given effects.
func NewChain(effects ...Effect) *Chain {
	return &Chain{effects: effects}
}

// Add appends an effect to the chain.
func (c *Chain) Add(effect Effect) {
	logrus.WithFields(logrus.Fields{
		"function":     "Chain.Add",
		"effect_name":  effect.Name(),
		"new_position": len(c.effects),
	}).Debug("Adding effect to channel chain")
	c.effects = append(c.effects, effect)
}

// Process runs samples through every effect.
func (c *Chain) Process(samples []float32) ([]float32, error) {
	current := samples
	for i, effect := range c.effects {
		out, err := effect.Process(current)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":     "Chain.Process",
				"effect_index": i,
				"effect_name":  effect.Name(),
				"error":        err.Error(),
			}).Error("Effect processing failed")
			return nil, fmt.Errorf("effect %d (%s) failed: %w", i, effect.Name(), err)
		}
		current = out
	}
	return current, nil
}

// Name returns "chain".
func (c *Chain) Name() string { return "chain" }

// Names returns the names of the chained effects in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.effects))
	for i, effect := range c.effects {
		names[i] = effect.Name()
	}
	return names
}
