package dsp

import (
	"encoding/binary"
	"math"

	"github.com/opd-ai/tonemodem/protocol"
)

// AmplitudeData is one frame of time-domain samples.
type AmplitudeData = [protocol.MaxSamplesPerFrame]float32

// SpectrumData is one frame of magnitudes; only the first N/2+1 bins are meaningful.
type SpectrumData = [protocol.MaxSamplesPerFrame]float64

const int16Scale = 32767.0

// DecodeFloat32LE converts little-endian float32 bytes into dst and returns the
// number of samples written.
func DecodeFloat32LE(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
	return n
}

// DecodeInt16LE converts little-endian int16 PCM bytes into dst in [-1, 1].
func DecodeInt16LE(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(src[2*i:]))) / int16Scale
	}
	return n
}

// EncodeFloat32LE writes src as little-endian float32 and returns the bytes written.
func EncodeFloat32LE(dst []byte, src []float32) int {
	n := min(len(src), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(src[i]))
	}
	return 4 * n
}

// EncodeInt16LE writes src as little-endian int16 PCM, clamping to [-1, 1].
func EncodeInt16LE(dst []byte, src []float32) int {
	n := min(len(src), len(dst)/2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(ToInt16(src[i])))
	}
	return 2 * n
}

// ToInt16 scales a float sample to 16-bit PCM with clipping.
func ToInt16(s float32) int16 {
	v := math.Round(float64(s) * int16Scale)
	if v > int16Scale {
		return math.MaxInt16
	}
	if v < -int16Scale-1 {
		return math.MinInt16
	}
	return int16(v)
}

// DecodeSamples converts bytes of the given sample size into dst.
func DecodeSamples(dst []float32, src []byte, sampleSize int) int {
	if sampleSize == 2 {
		return DecodeInt16LE(dst, src)
	}
	return DecodeFloat32LE(dst, src)
}

// EncodeSamples converts src into bytes of the given sample size.
func EncodeSamples(dst []byte, src []float32, sampleSize int) int {
	if sampleSize == 2 {
		return EncodeInt16LE(dst, src)
	}
	return EncodeFloat32LE(dst, src)
}
