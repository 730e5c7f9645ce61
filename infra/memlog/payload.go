package memlog

import "fmt"

// Encoding tells how a payload was produced.
type Encoding uint8

const (
	// EncodingCodec marks bytes produced by a named codec.
	EncodingCodec Encoding = iota + 1
	// EncodingLegacy marks bytes produced by generic serialization.
	EncodingLegacy
)

func (e Encoding) String() string {
	switch e {
	case EncodingCodec:
		return "codec"
	case EncodingLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

// Payload is a stored record. It is either a CodecPayload or a LegacyPayload.
type Payload interface {
	Encoding() Encoding
	Bytes() []byte
	payload()
}

// CodecPayload holds bytes encoded by a codec.
type CodecPayload []byte

func (CodecPayload) Encoding() Encoding { return EncodingCodec }
func (p CodecPayload) Bytes() []byte { return p }
func (CodecPayload) payload() {}

// LegacyPayload holds bytes encoded by generic serialization.
type LegacyPayload []byte

func (LegacyPayload) Encoding() Encoding { return EncodingLegacy }
func (p LegacyPayload) Bytes() []byte { return p }
func (LegacyPayload) payload() {}

// NewPayload wraps data into the variant matching e.
func NewPayload(e Encoding, data []byte) Payload {
	switch e {
	case EncodingLegacy:
		return LegacyPayload(data)
	default:
		return CodecPayload(data)
	}
}
