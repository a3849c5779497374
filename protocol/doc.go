// Package protocol defines the on-air format of the tone modem and derives
// every timing and frequency constant the transmitter and receiver share.
//
// # Capacities
//
// All engine buffers are fixed-capacity and sized from the constants in this
// package:
//
//   - MaxSamplesPerFrame (1024): largest analysis/synthesis frame
//   - MaxDataBits (256): largest number of simultaneous tone positions
//   - MaxDataSize (256): payload and encoded byte buffers
//   - MaxLength (140): longest accepted payload
//   - MaxRecordedFrames (640): longest capture the receiver can hold
//
// # Tone Plan
//
// Bit position k owns two tones: the bit-1 tone at bin FreqStart+k*FreqDelta and
// the bit-0 tone BitZeroOffset bins above it. A bin is SampleRateIn/SamplesPerFrame
// hertz wide, so every tone completes a whole number of cycles per frame.
//
//	p := protocol.DefaultParams()
//	d, err := protocol.Derive(protocol.DefaultStreamConfig(), p)
//	if err != nil {
//	    // errors.Is(err, protocol.ErrToneOutOfRange) ...
//	}
//	hz := d.BitOneHz(0)
//
// # Framing
//
// A transmission is NMarkerFrames start-marker frames, the encoded bytes split in
// groups of BytesPerTx (each group repeated FramesPerTx times), then
// NPostMarkerFrames end-marker frames. Layout selects fixed-length or
// variable-length framing.
package protocol
