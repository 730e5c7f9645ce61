package codec

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

var ErrNilProto = errors.New("codec: nil proto message")

// Proto encodes generated protobuf messages in wire format.
// M must be a concrete generated message pointer type.
type Proto[M proto.Message] struct{}

func (Proto[M]) Name() string { return NameProto }

func (Proto[M]) Encode(m M) ([]byte, error) {
	if !m.ProtoReflect().IsValid() {
		return nil, ErrNilProto
	}
	b, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "proto encode")
	}
	return b, nil
}

func (Proto[M]) Decode(data []byte) (M, error) {
	var zero M
	// Generated messages answer ProtoReflect on a nil receiver.
	m := zero.ProtoReflect().New().Interface().(M)
	if err := proto.Unmarshal(data, m); err != nil {
		return zero, errors.Wrap(err, "proto decode")
	}
	return m, nil
}
