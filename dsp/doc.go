// Package dsp provides the signal processing used by the tone modem: PCM
// sample format conversion, FFT magnitude spectra with a short noise-averaging
// history, and linear-interpolation resampling.
//
// # Spectral Analysis
//
// Analyzer wraps a gonum real FFT sized to the session's frame length. Magnitudes
// are scaled by 2/N, so a tone of amplitude a that completes a whole number of
// cycles in the frame reads a in its bin; the synthesizer writes tones in the
// same units, which keeps receive thresholds meaningful across both paths.
//
//	a := dsp.NewAnalyzer(1024)
//	mean := a.Push(frame) // running mean of the last MaxSpectrumHistory spectra
//
// # Sample Formats
//
// Audio crosses the engine boundary as little-endian bytes: 4-byte float32 or
// 2-byte signed 16-bit PCM. DecodeSamples and EncodeSamples pick the format from
// the sample size and never allocate.
//
// # Resampling
//
// Resampler converts captured audio to the engine's input rate using linear
// interpolation and carries its position across calls for streaming use.
package dsp
