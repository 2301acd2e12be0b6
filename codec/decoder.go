package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"

	"rxcall/graphql"
)

// Decoder turns a successful body into a T. ok is false when the body
// decoded to nothing, e.g. a JSON null.
type Decoder[T any] interface {
	Decode(data []byte) (v T, ok bool, err error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc[T any] func(data []byte) (T, bool, error)

func (f DecoderFunc[T]) Decode(data []byte) (T, bool, error) {
	return f(data)
}

// For returns a Decoder producing T with c. When T is a protobuf message
// pointer a fresh message is allocated per body.
func For[T any](c Codec) Decoder[T] {
	return DecoderFunc[T](func(data []byte) (T, bool, error) {
		var v T
		if c.Type() == CodecTypeJSON && isJSONNull(data) {
			return v, false, nil
		}
		if m, ok := any(v).(proto.Message); ok {
			msg := m.ProtoReflect().Type().New().Interface()
			if err := c.Decode(data, msg); err != nil {
				return v, false, fmt.Errorf("codec: decode %T: %w", v, err)
			}
			return msg.(T), true, nil
		}
		if err := c.Decode(data, &v); err != nil {
			return v, false, fmt.Errorf("codec: decode %T: %w", v, err)
		}
		return v, true, nil
	})
}

// String returns the body as text.
func String() Decoder[string] {
	return DecoderFunc[string](func(data []byte) (string, bool, error) {
		return string(data), true, nil
	})
}

// Bytes returns the body unchanged. It is the payload decoder of pipelines
// that ignore the body.
func Bytes() Decoder[[]byte] {
	return DecoderFunc[[]byte](func(data []byte) ([]byte, bool, error) {
		return bytes.Clone(data), true, nil
	})
}

// GraphQL decodes a {data, errors} body. Data is the value of the first
// field of the data object in document order, decoded with c; a null or
// non-object data leaves Envelope.Data nil.
func GraphQL[T any](c Codec) Decoder[graphql.Envelope[T]] {
	inner := For[T](c)
	return DecoderFunc[graphql.Envelope[T]](func(data []byte) (graphql.Envelope[T], bool, error) {
		var env graphql.Envelope[T]
		if isJSONNull(data) {
			return env, false, nil
		}
		var body struct {
			Data   json.RawMessage `json:"data"`
			Errors []graphql.Error `json:"errors"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return env, false, fmt.Errorf("codec: decode graphql envelope: %w", err)
		}
		env.Errors = body.Errors

		raw, err := firstField(body.Data)
		if err != nil {
			return env, false, fmt.Errorf("codec: decode graphql data: %w", err)
		}
		if raw == nil {
			return env, true, nil
		}
		v, ok, err := inner.Decode(raw)
		if err != nil {
			return env, false, err
		}
		if ok {
			env.Data = &v
		}
		return env, true, nil
	})
}

// firstField returns the raw value of the first member of a JSON object, or
// nil when data is absent, null, empty or not an object.
func firstField(data json.RawMessage) (json.RawMessage, error) {
	if isJSONNull(data) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil
	}
	if !dec.More() {
		return nil, nil
	}
	if _, err := dec.Token(); err != nil { // key
		return nil, err
	}
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func isJSONNull(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}
