package a2a

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage(RoleUser, "hello")

	require.NoError(t, msg.Validate())
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Text())
	assert.Equal(t, KindText, msg.Parts[0].Kind)
}

func TestMessage_TextReadsFirstPart(t *testing.T) {
	msg := &Message{Parts: []Part{{Content: "primary"}, {Content: "ignored"}}}
	assert.Equal(t, "primary", msg.Text())

	var nilMsg *Message
	assert.Equal(t, "", nilMsg.Text())
}

func TestMessage_ValidateRejectsEmpty(t *testing.T) {
	assert.ErrorIs(t, (&Message{}).Validate(), ErrEmptyMessage)
	assert.ErrorIs(t, (*Message)(nil).Validate(), ErrEmptyMessage)

	msg := &Message{Parts: []Part{{Content: "x"}}}
	require.NoError(t, msg.Validate())
	assert.Equal(t, KindText, msg.Parts[0].Kind, "missing kind defaults to text")
}

func TestMessage_WithContextCopies(t *testing.T) {
	orig := NewTextMessage(RoleUser, "q")
	bound := orig.WithContext("run-1")

	assert.Equal(t, "run-1", bound.ContextID)
	assert.Empty(t, orig.ContextID)

	bound.Parts[0].Content = "changed"
	assert.Equal(t, "q", orig.Text(), "parts must not be shared")
}

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodec_PlainStruct(t *testing.T) {
	var c Codec
	in := &InvokeRequest{Capability: "doctor_agent", Message: NewTextMessage(RoleUser, "CA")}

	data, err := c.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"capability":"doctor_agent"`)
	assert.Contains(t, string(data), `"parts":[{"content":"CA","kind":"text/plain"}]`)

	out := new(InvokeRequest)
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, "doctor_agent", out.Capability)
	assert.Equal(t, "CA", out.Message.Text())
}

func TestCodec_ProtoMessage(t *testing.T) {
	var c Codec
	in, err := structpb.NewStruct(map[string]any{"error": "Failed to fetch doctor data."})
	require.NoError(t, err)

	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(structpb.Struct)
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, "Failed to fetch doctor data.", out.GetFields()["error"].GetStringValue())
}

func TestCodec_UnmarshalError(t *testing.T) {
	var c Codec
	err := c.Unmarshal([]byte("{not json"), new(InvokeResponse))
	assert.Error(t, err)
}
