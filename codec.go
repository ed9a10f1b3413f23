package asyncgrpc

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
)

// protoCodec marshals gogo proto messages on both ends of a channel.
// It is forced on the server and on channels built by NewChannel, so
// that hand-written message types without generated marshalers still
// round-trip through proto reflection.
type protoCodec struct{}

func (protoCodec) Marshal(v interface{}) ([]byte, error) {
	var msg, ok = v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("cannot marshal %T: not a proto message", v)
	}
	return proto.Marshal(msg)
}

func (protoCodec) Unmarshal(data []byte, v interface{}) error {
	var msg, ok = v.(proto.Message)
	if !ok {
		return fmt.Errorf("cannot unmarshal into %T: not a proto message", v)
	}
	return proto.Unmarshal(data, msg)
}

func (protoCodec) Name() string { return "proto" }
