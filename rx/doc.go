// Package rx implements the tone-modem receive state machine.
//
// A Receiver consumes one input frame at a time and moves through three states:
//
//	Idle       scan: every frame feeds the spectrum history; once the averaged
//	           spectrum has matched the marker NMarkerFrames-MarkerLeadFrames
//	           times in a row a capture starts
//	Recording  frames are appended to the capture buffer until the expected
//	           transmission length (plus slack) is held
//	Analyzing  the capture is demodulated at candidate data offsets until one
//	           decodes through the ECC adapter, then the receiver returns to Idle
//
// The last PreRollFrames raw frames seen while scanning seed each capture, so
// data frames that arrive while the averaged spectrum still looks like the
// marker are not lost. Candidate offsets are tried nearest-first around the
// expected data start; averaging only the interior frames of each repeated group
// makes every offset within one frame of the true start decode identically.
//
// Decode failures are not errors: the receiver reports EventDecodeFailed and
// resumes scanning with any previously received payload untouched.
package rx
