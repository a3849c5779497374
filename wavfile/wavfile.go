// Package wavfile reads and writes modem audio as PCM WAV files.
//
// Files are written as 16-bit mono PCM. Reading accepts 16, 24 and 32-bit
// PCM with any channel count; multi-channel files are mixed down to mono.
package wavfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tonemodem/dsp"
)

// ErrInvalidFile indicates input that is not a readable PCM WAV file.
var ErrInvalidFile = errors.New("invalid WAV file")

const (
	bitDepth     = 16
	pcmFormat    = 1
	monoChannels = 1
)

// Write encodes samples in [-1, 1] as a 16-bit mono WAV file at rate.
func Write(w io.WriteSeeker, rate int, samples []float32) error {
	if rate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFile, rate)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: monoChannels, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(dsp.ToInt16(s))
	}

	enc := wav.NewEncoder(w, rate, bitDepth, monoChannels, pcmFormat)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Write",
		"sample_rate": rate,
		"samples":     len(samples),
	}).Debug("WAV file written")
	return nil
}

// Read decodes a PCM WAV file and returns its mono samples in [-1, 1] and its
// sample rate.
func Read(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidFile
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode samples: %w", err)
	}

	depth := int(dec.BitDepth)
	if depth != 16 && depth != 24 && depth != 32 {
		return nil, 0, fmt.Errorf("%w: bit depth %d", ErrInvalidFile, depth)
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrInvalidFile, channels)
	}

	scale := float32(int64(1) << (depth - 1))
	samples := make([]float32, len(buf.Data)/channels)
	for i := range samples {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	rate := int(dec.SampleRate)
	logrus.WithFields(logrus.Fields{
		"function":    "Read",
		"sample_rate": rate,
		"bit_depth":   depth,
		"channels":    channels,
		"samples":     len(samples),
	}).Debug("WAV file read")
	return samples, rate, nil
}
