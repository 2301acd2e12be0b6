package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec uses the protobuf binary wire format. Only proto.Message values
// are accepted.
type ProtoCodec struct{}

func (c *ProtoCodec) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("ProtoCodec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (c *ProtoCodec) Decode(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("ProtoCodec: %T is not a proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}

func (c *ProtoCodec) Type() CodecType {
	return CodecTypeProto
}

func (c *ProtoCodec) ContentType() string {
	return "application/x-protobuf"
}
