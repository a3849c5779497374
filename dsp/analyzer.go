package dsp

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/opd-ai/tonemodem/protocol"
)

// Analyzer computes magnitude spectra of fixed-size frames and keeps a ring of
// the last MaxSpectrumHistory spectra with their running mean.
// An Analyzer is not safe for concurrent use.
type Analyzer struct {
	n     int
	bins  int
	scale float64
	fft   *fourier.FFT

	in    [protocol.MaxSamplesPerFrame]float64
	coeff []complex128

	history   [protocol.MaxSpectrumHistory]SpectrumData
	historyID int
	mean      SpectrumData
}

// NewAnalyzer creates an analyzer for frames of n samples.
func NewAnalyzer(n int) *Analyzer {
	return &Analyzer{
		n:     n,
		bins:  n/2 + 1,
		scale: 2.0 / float64(n),
		fft:   fourier.NewFFT(n),
		coeff: make([]complex128, n/2+1),
	}
}

// Size is the frame length the analyzer was built for.
func (a *Analyzer) Size() int { return a.n }

// Bins is the number of meaningful spectrum entries, N/2+1.
func (a *Analyzer) Bins() int { return a.bins }

// Magnitude writes the scaled magnitude spectrum of frame into dst. frame must
// hold at least Size() samples.
func (a *Analyzer) Magnitude(frame []float32, dst *SpectrumData) {
	in := a.in[:a.n]
	for i := range in {
		in[i] = float64(frame[i])
	}
	a.fft.Coefficients(a.coeff, in)
	for k, c := range a.coeff {
		dst[k] = cmplx.Abs(c) * a.scale
	}
}

// Push analyzes frame, stores its spectrum in the history ring and returns the
// refreshed running mean.
func (a *Analyzer) Push(frame []float32) *SpectrumData {
	a.Magnitude(frame, &a.history[a.historyID])
	if a.historyID++; a.historyID >= protocol.MaxSpectrumHistory {
		a.historyID = 0
	}

	mean := a.mean[:a.bins]
	clear(mean)
	for i := range a.history {
		floats.Add(mean, a.history[i][:a.bins])
	}
	floats.Scale(1.0/protocol.MaxSpectrumHistory, mean)
	return &a.mean
}

// Mean returns the running mean of the spectrum history.
func (a *Analyzer) Mean() *SpectrumData { return &a.mean }

// Reset clears the spectrum history.
func (a *Analyzer) Reset() {
	for i := range a.history {
		clear(a.history[i][:])
	}
	clear(a.mean[:])
	a.historyID = 0
}
