package codec

import (
	"fmt"
	"strings"
)

type CodecType byte

const (
	CodecTypeJSON  CodecType = 0
	CodecTypeProto CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeProto:
		return "proto"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

// Codec converts request and response bodies to and from wire bytes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType     // 0=JSON, 1=Proto
	ContentType() string // sent as Content-Type and Accept
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeProto {
		return &ProtoCodec{}
	}

	return &JSONCodec{}
}

// ParseType maps a configuration name to a CodecType.
func ParseType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecTypeJSON, nil
	case "proto", "protobuf":
		return CodecTypeProto, nil
	default:
		return 0, fmt.Errorf("codec: unknown codec %q", name)
	}
}
