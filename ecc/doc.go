// Package ecc adapts byte-oriented error-correcting codes for the tone modem.
//
// The modem consumes a code through the small Codec interface: Encode appends
// ECC bytes to a data block and Decode reports success instead of returning an
// error when a block has more corrupted bytes than the code can correct.
//
// Two implementations are provided:
//
//   - ReedSolomon: a systematic Reed-Solomon code over GF(2^8) backed by
//     github.com/vivint/infectious, one share per byte, Berlekamp-Welch decoding
//   - PassThrough: copies data and writes zero ECC bytes; Decode always succeeds.
//     It lets framing and synchronization be tested without the code's behaviour.
//
// Adapter owns two independent codec instances, one for the payload and one for
// the variable-length prefix, and rebuilds each lazily when its sizes change:
//
//	a := ecc.NewAdapter(ecc.NewReedSolomon)
//	n, err := a.EncodePayload(dst, data, 32)
//	ok := a.DecodePayload(out, dst[:n], len(data), 32)
package ecc
