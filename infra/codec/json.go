package codec

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSON encodes messages with encoding/json.
type JSON[M any] struct{}

func (JSON[M]) Name() string { return NameJSON }

func (JSON[M]) Encode(m M) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)
	if err := json.NewEncoder(buf).Encode(m); err != nil {
		return nil, errors.Wrap(err, "json encode")
	}
	// Encoder terminates every value with a newline.
	return bytes.Clone(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func (JSON[M]) Decode(data []byte) (M, error) {
	var m M
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "json decode")
	}
	return m, nil
}

// ---------- Raw ----------

// Raw passes bytes through untouched.
type Raw struct{}

func (Raw) Name() string { return NameRaw }

func (Raw) Encode(b []byte) ([]byte, error) { return bytes.Clone(b), nil }

func (Raw) Decode(b []byte) ([]byte, error) { return bytes.Clone(b), nil }
