package ecc

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tonemodem/protocol"
)

// Adapter owns the payload codec and the length-prefix codec. Each instance is
// rebuilt only when the requested block sizes differ from the current ones.
type Adapter struct {
	factory Factory
	payload Codec
	length  Codec

	lengthIn  [protocol.LengthFieldBytes]byte
	lengthOut [protocol.LengthFieldBytes]byte
}

// NewAdapter creates an adapter building codecs with factory. A nil factory
// selects NewReedSolomon.
func NewAdapter(factory Factory) *Adapter {
	if factory == nil {
		factory = NewReedSolomon
	}
	return &Adapter{factory: factory}
}

func (a *Adapter) codec(slot *Codec, dataLen, eccLen int) (Codec, error) {
	if c := *slot; c != nil && c.DataLen() == dataLen && c.ECCLen() == eccLen {
		return c, nil
	}
	c, err := a.factory(dataLen, eccLen)
	if err != nil {
		return nil, err
	}
	*slot = c
	return c, nil
}

// EncodePayload writes data followed by eccLen ECC bytes into dst and returns
// the number of bytes written.
func (a *Adapter) EncodePayload(dst, data []byte, eccLen int) (int, error) {
	c, err := a.codec(&a.payload, len(data), eccLen)
	if err != nil {
		return 0, err
	}
	if err := c.Encode(dst, data); err != nil {
		return 0, err
	}
	return len(data) + eccLen, nil
}

// DecodePayload corrects a payload block of dataLen+eccLen bytes and writes
// dataLen bytes into dst.
func (a *Adapter) DecodePayload(dst, encoded []byte, dataLen, eccLen int) bool {
	c, err := a.codec(&a.payload, dataLen, eccLen)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Adapter.DecodePayload",
			"data_len": dataLen,
			"ecc_len":  eccLen,
			"error":    err.Error(),
		}).Warn("Payload codec unavailable")
		return false
	}
	return c.Decode(dst, encoded)
}

// EncodeLength writes the EncodedLengthBytes-byte prefix for a payload of n bytes.
func (a *Adapter) EncodeLength(dst []byte, n int) error {
	if n < 0 || n > protocol.MaxLength {
		return fmt.Errorf("%w: length %d", protocol.ErrPayloadTooLarge, n)
	}
	c, err := a.codec(&a.length, protocol.LengthFieldBytes, protocol.LengthECCBytes)
	if err != nil {
		return err
	}
	a.lengthIn[0] = byte(n)
	return c.Encode(dst, a.lengthIn[:])
}

// DecodeLength recovers the payload length from an encoded prefix. Lengths
// above MaxLength are reported as failures.
func (a *Adapter) DecodeLength(encoded []byte) (int, bool) {
	c, err := a.codec(&a.length, protocol.LengthFieldBytes, protocol.LengthECCBytes)
	if err != nil {
		return 0, false
	}
	if !c.Decode(a.lengthOut[:], encoded) {
		return 0, false
	}
	n := int(a.lengthOut[0])
	if n > protocol.MaxLength {
		return 0, false
	}
	return n, true
}
