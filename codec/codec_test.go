package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}

	data, err := jsonCodec.Encode(user{ID: 7, Name: "ada"})
	require.NoError(t, err)

	var decoded user
	require.NoError(t, jsonCodec.Decode(data, &decoded))
	assert.Equal(t, user{ID: 7, Name: "ada"}, decoded)
	assert.Equal(t, "application/json", jsonCodec.ContentType())
}

func TestJSONCodecUsesProtoJSONForMessages(t *testing.T) {
	jsonCodec := &JSONCodec{}

	data, err := jsonCodec.Encode(wrapperspb.String("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(data))

	msg := &wrapperspb.StringValue{}
	require.NoError(t, jsonCodec.Decode(data, msg))
	assert.Equal(t, "hello", msg.GetValue())
}

func TestProtoCodec(t *testing.T) {
	protoCodec := &ProtoCodec{}

	data, err := protoCodec.Encode(wrapperspb.Int64(42))
	require.NoError(t, err)

	msg := &wrapperspb.Int64Value{}
	require.NoError(t, protoCodec.Decode(data, msg))
	assert.Equal(t, int64(42), msg.GetValue())

	_, err = protoCodec.Encode(user{})
	assert.Error(t, err)
	assert.Error(t, protoCodec.Decode(data, &user{}))
}

func TestGetCodecAndParseType(t *testing.T) {
	assert.IsType(t, &JSONCodec{}, GetCodec(CodecTypeJSON))
	assert.IsType(t, &ProtoCodec{}, GetCodec(CodecTypeProto))

	for name, want := range map[string]CodecType{"": CodecTypeJSON, "JSON": CodecTypeJSON, "protobuf": CodecTypeProto} {
		got, err := ParseType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseType("xml")
	assert.Error(t, err)
}

func TestForJSON(t *testing.T) {
	dec := For[user](&JSONCodec{})

	v, ok, err := dec.Decode([]byte(`{"id":1,"name":"x"}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, user{ID: 1, Name: "x"}, v)

	_, ok, err = dec.Decode([]byte(" null "))
	require.NoError(t, err)
	assert.False(t, ok, "null decodes to an absent body")

	_, _, err = dec.Decode([]byte(`{"id":`))
	assert.Error(t, err)
}

func TestForProtoAllocatesMessage(t *testing.T) {
	data, err := proto.Marshal(wrapperspb.String("wire"))
	require.NoError(t, err)

	dec := For[*wrapperspb.StringValue](&ProtoCodec{})
	first, ok, err := dec.Decode(data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wire", first.GetValue())

	second, _, err := dec.Decode(data)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestGraphQLDecoder(t *testing.T) {
	dec := GraphQL[user](&JSONCodec{})

	t.Run("first data field", func(t *testing.T) {
		env, ok, err := dec.Decode([]byte(`{"data":{"viewer":{"id":3,"name":"v"},"other":{"id":9}}}`))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, env.HasData())
		assert.Equal(t, user{ID: 3, Name: "v"}, *env.Data)
	})

	t.Run("errors come before data", func(t *testing.T) {
		env, ok, err := dec.Decode([]byte(`{"errors":[{"message":"partial","path":["viewer"]}],"data":{"viewer":{"id":1}}}`))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, env.HasData())
		require.Len(t, env.Errors, 1)
		assert.Equal(t, "partial", env.Errors[0].Message)
	})

	for name, body := range map[string]string{
		"null data":    `{"data":null,"errors":[{"message":"boom"}]}`,
		"missing data": `{"errors":[]}`,
		"empty data":   `{"data":{}}`,
		"array data":   `{"data":[1,2]}`,
		"null first":   `{"data":{"viewer":null}}`,
	} {
		t.Run(name, func(t *testing.T) {
			env, ok, err := dec.Decode([]byte(body))
			require.NoError(t, err)
			require.True(t, ok)
			assert.False(t, env.HasData())
		})
	}

	_, ok, err := dec.Decode(nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = dec.Decode([]byte(`{"data":{"viewer":"not an object"}}`))
	assert.Error(t, err)
}

func TestBytesDecoderCopies(t *testing.T) {
	in := []byte("raw")
	out, ok, err := Bytes().Decode(in)
	require.NoError(t, err)
	require.True(t, ok)
	in[0] = 'X'
	assert.Equal(t, "raw", string(out))

	s, _, _ := String().Decode([]byte("text"))
	assert.Equal(t, "text", s)
}
