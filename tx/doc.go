// Package tx synthesizes tone-modem transmissions.
//
// A Synthesizer turns a payload into ECC-protected bytes, the bytes into bit
// groups, and the groups into fixed-size audio frames: start-marker frames,
// each data group repeated FramesPerTx times, then end-marker frames.
//
// Every bit position owns one oscillator whose phase persists across frames.
// A position plays its bit-1 tone or its bit-0 tone, and switching between them
// only changes the oscillator frequency, so the waveform never jumps at frame
// boundaries. Frames are built from sine/cosine templates rotated by the running
// phase, which keeps trigonometry off the per-frame path.
//
//	s := tx.New(derived, ecc.NewAdapter(nil))
//	if err := s.Init(protocol.VariableLength, []byte("hello")); err != nil {
//	    return err
//	}
//	var frame dsp.AmplitudeData
//	for s.NextFrame(frame[:]) {
//	    play(frame[:derived.SamplesPerFrameOut])
//	}
package tx
