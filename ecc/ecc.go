package ecc

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vivint/infectious"

	"github.com/opd-ai/tonemodem/protocol"
)

// ErrBlockSize indicates a data block whose size does not match the codec.
var ErrBlockSize = errors.New("block size mismatch")

// Codec is a byte-oriented systematic error-correcting code.
type Codec interface {
	// DataLen is the number of data bytes per block.
	DataLen() int
	// ECCLen is the number of ECC bytes appended per block.
	ECCLen() int
	// Encode writes DataLen()+ECCLen() bytes into dst.
	Encode(dst, data []byte) error
	// Decode writes DataLen() corrected bytes into dst and reports success.
	Decode(dst, encoded []byte) bool
}

// Factory builds a codec for the given block sizes.
type Factory func(dataLen, eccLen int) (Codec, error)

// ReedSolomon is a Reed-Solomon code with one byte per share.
type ReedSolomon struct {
	fec    *infectious.FEC
	k, n   int
	shares [protocol.MaxDataSize]infectious.Share
	buf    [protocol.MaxDataSize]byte
}

// NewReedSolomon creates a code correcting up to eccLen/2 corrupted bytes.
func NewReedSolomon(dataLen, eccLen int) (Codec, error) {
	n := dataLen + eccLen
	if dataLen < 1 || eccLen < 1 || n > protocol.MaxDataSize {
		return nil, fmt.Errorf("%w: data=%d ecc=%d", ErrBlockSize, dataLen, eccLen)
	}
	fec, err := infectious.NewFEC(dataLen, n)
	if err != nil {
		return nil, fmt.Errorf("create reed-solomon(%d, %d): %w", n, dataLen, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewReedSolomon",
		"data_len": dataLen,
		"ecc_len":  eccLen,
	}).Debug("Created Reed-Solomon codec")

	return &ReedSolomon{fec: fec, k: dataLen, n: n}, nil
}

// DataLen implements Codec.
func (rs *ReedSolomon) DataLen() int { return rs.k }

// ECCLen implements Codec.
func (rs *ReedSolomon) ECCLen() int { return rs.n - rs.k }

// Encode implements Codec.
func (rs *ReedSolomon) Encode(dst, data []byte) error {
	if len(data) != rs.k || len(dst) < rs.n {
		return fmt.Errorf("%w: data=%d dst=%d, want %d/%d", ErrBlockSize, len(data), len(dst), rs.k, rs.n)
	}
	return rs.fec.Encode(data, func(s infectious.Share) {
		dst[s.Number] = s.Data[0]
	})
}

// Decode implements Codec. The shares are rebuilt from encoded on every call,
// since the decoder corrects and reorders them in place.
func (rs *ReedSolomon) Decode(dst, encoded []byte) bool {
	if len(encoded) < rs.n || len(dst) < rs.k {
		return false
	}
	copy(rs.buf[:rs.n], encoded)
	shares := rs.shares[:rs.n]
	for i := range shares {
		shares[i] = infectious.Share{Number: i, Data: rs.buf[i : i+1]}
	}
	out, err := rs.fec.Decode(dst[:0], shares)
	if err != nil || len(out) < rs.k {
		return false
	}
	copy(dst[:rs.k], out)
	return true
}

// PassThrough stores data unchanged followed by zero ECC bytes.
type PassThrough struct {
	k, ecc int
}

// NewPassThrough is a Factory for PassThrough codecs.
func NewPassThrough(dataLen, eccLen int) (Codec, error) {
	if dataLen < 1 || eccLen < 0 || dataLen+eccLen > protocol.MaxDataSize {
		return nil, fmt.Errorf("%w: data=%d ecc=%d", ErrBlockSize, dataLen, eccLen)
	}
	return &PassThrough{k: dataLen, ecc: eccLen}, nil
}

// DataLen implements Codec.
func (p *PassThrough) DataLen() int { return p.k }

// ECCLen implements Codec.
func (p *PassThrough) ECCLen() int { return p.ecc }

// Encode implements Codec.
func (p *PassThrough) Encode(dst, data []byte) error {
	if len(data) != p.k || len(dst) < p.k+p.ecc {
		return fmt.Errorf("%w: data=%d dst=%d", ErrBlockSize, len(data), len(dst))
	}
	copy(dst, data)
	clear(dst[p.k : p.k+p.ecc])
	return nil
}

// Decode implements Codec.
func (p *PassThrough) Decode(dst, encoded []byte) bool {
	if len(encoded) < p.k+p.ecc || len(dst) < p.k {
		return false
	}
	copy(dst[:p.k], encoded[:p.k])
	return true
}
