package codec

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"

	"memlog/infra/memory"
)

// Codec encodes and decodes message values.
type Codec[M any] interface {
	Name() string
	Encode(M) ([]byte, error)
	Decode([]byte) (M, error)
}

const (
	NameNone  = "none"
	NameGob   = "gob"
	NameJSON  = "json"
	NameProto = "proto"
	NameRaw   = "raw"
)

var buffers = memory.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// ---------- NoCodec ----------

type noCodec[M any] struct{ Gob[M] }

func (noCodec[M]) Name() string { return NameNone }

// NoCodec returns the legacy sentinel codec.
func NoCodec[M any]() Codec[M] { return noCodec[M]{} }

// IsNoCodec reports whether c is the legacy sentinel. A nil codec counts as one.
func IsNoCodec[M any](c Codec[M]) bool {
	if c == nil {
		return true
	}
	_, ok := c.(noCodec[M])
	return ok
}

// ---------- Gob ----------

// Gob serializes any gob-encodable value.
type Gob[M any] struct{}

func (Gob[M]) Name() string { return NameGob }

func (Gob[M]) Encode(m M) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)
	if err := gob.NewEncoder(buf).Encode(&m); err != nil {
		return nil, errors.Wrap(err, "gob encode")
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (Gob[M]) Decode(data []byte) (M, error) {
	var m M
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return m, errors.Wrap(err, "gob decode")
	}
	return m, nil
}
