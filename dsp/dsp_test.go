package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, bin float64, amp float32, phase float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*bin*float64(i)/float64(n)+phase))
	}
	return out
}

func TestFormatRoundTrip(t *testing.T) {
	src := []float32{0, 0.5, -0.5, 1, -1, 0.25}

	buf := make([]byte, 4*len(src))
	assert.Equal(t, 24, EncodeSamples(buf, src, 4))
	got := make([]float32, len(src))
	assert.Equal(t, len(src), DecodeSamples(got, buf, 4))
	assert.Equal(t, src, got)

	buf16 := make([]byte, 2*len(src))
	assert.Equal(t, 12, EncodeSamples(buf16, src, 2))
	assert.Equal(t, len(src), DecodeSamples(got, buf16, 2))
	for i := range src {
		assert.InDelta(t, src[i], got[i], 1.0/32767)
	}
}

func TestToInt16Clips(t *testing.T) {
	assert.Equal(t, int16(32767), ToInt16(1.5))
	assert.Equal(t, int16(-32768), ToInt16(-1.5))
	assert.Equal(t, int16(0), ToInt16(0))
	assert.Equal(t, int16(16384), ToInt16(0.5))
}

func TestDecodeShortInput(t *testing.T) {
	dst := make([]float32, 8)
	assert.Equal(t, 1, DecodeFloat32LE(dst, make([]byte, 7)))
	assert.Equal(t, 3, DecodeInt16LE(dst, make([]byte, 7)))
}

func TestAnalyzerMagnitudeScale(t *testing.T) {
	a := NewAnalyzer(1024)
	assert.Equal(t, 513, a.Bins())

	var spec SpectrumData
	a.Magnitude(sine(1024, 40, 0.5, 0.3), &spec)

	assert.InDelta(t, 0.5, spec[40], 1e-4)
	assert.InDelta(t, 0, spec[39], 1e-4)
	assert.InDelta(t, 0, spec[43], 1e-4)
}

func TestAnalyzerMagnitudeIsShiftInvariantForBinTones(t *testing.T) {
	a := NewAnalyzer(512)
	var s1, s2 SpectrumData
	a.Magnitude(sine(512, 20, 0.1, 0), &s1)
	a.Magnitude(sine(512, 20, 0.1, 1.7), &s2)
	assert.InDelta(t, s1[20], s2[20], 1e-5)
}

func TestAnalyzerRunningMean(t *testing.T) {
	a := NewAnalyzer(256)
	tone := sine(256, 10, 0.8, 0)
	silence := make([]float32, 256)

	mean := a.Push(tone)
	assert.InDelta(t, 0.2, mean[10], 1e-4)

	a.Push(silence)
	a.Push(tone)
	mean = a.Push(tone)
	assert.InDelta(t, 0.6, mean[10], 1e-4)

	// the oldest entry (first tone) is overwritten
	mean = a.Push(silence)
	assert.InDelta(t, 0.4, mean[10], 1e-4)
	assert.Same(t, mean, a.Mean())

	a.Reset()
	assert.InDelta(t, 0, a.Mean()[10], 1e-12)
	mean = a.Push(silence)
	assert.InDelta(t, 0, mean[10], 1e-12)
}

func TestNewResamplerRejectsBadRates(t *testing.T) {
	_, err := NewResampler(0, 48000)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = NewResampler(44100, -1)
	assert.ErrorIs(t, err, ErrInvalidRate)

	r, err := NewResampler(44100, 48000)
	require.NoError(t, err)
	assert.Equal(t, 44100, r.InputRate())
	assert.Equal(t, 48000, r.OutputRate())
}

func TestResampleSameRateCopies(t *testing.T) {
	r, err := NewResampler(48000, 48000)
	require.NoError(t, err)
	in := []float32{1, 2, 3}
	assert.Equal(t, in, r.Resample(nil, in))
}

func TestResampleLengthAndLinearity(t *testing.T) {
	r, err := NewResampler(44100, 48000)
	require.NoError(t, err)

	in := make([]float32, 4410)
	for i := range in {
		in[i] = float32(i) / 4410
	}
	out := r.Resample(nil, in)
	assert.InDelta(t, 4800, len(out), 2)

	// a ramp stays a ramp
	step := float32(44100.0 / 48000.0 / 4410.0)
	for i := 1; i < len(out); i++ {
		assert.InDelta(t, step, out[i]-out[i-1], 1e-5)
	}
}

func TestResampleStreamingMatchesSingleCall(t *testing.T) {
	in := sine(3000, 7, 0.5, 0)

	whole, err := NewResampler(48000, 44100)
	require.NoError(t, err)
	expected := whole.Resample(nil, in)

	chunked, err := NewResampler(48000, 44100)
	require.NoError(t, err)
	var got []float32
	for off := 0; off < len(in); off += 317 {
		end := min(off+317, len(in))
		got = chunked.Resample(got, in[off:end])
	}

	require.Equal(t, len(expected), len(got))
	for i := range got {
		assert.InDelta(t, expected[i], got[i], 1e-5)
	}
}
