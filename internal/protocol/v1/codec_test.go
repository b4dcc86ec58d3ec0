package v1

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecReadRequest(t *testing.T) {
	r := bytes.NewBufferString("{\"id\":1,\"method\":\"mining.subscribe\",\"params\":[]}\n")
	codec := NewCodec(r, io.Discard)

	req, err := codec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "mining.subscribe", req.Method)
}

func TestCodecReadRequestEOF(t *testing.T) {
	codec := NewCodec(bytes.NewBufferString(""), io.Discard)
	_, err := codec.ReadRequest()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodecWriteResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(bytes.NewReader(nil), &buf)

	require.NoError(t, codec.WriteResponse(NewAuthorizeResponse(2, true)))
	assert.Contains(t, buf.String(), `"id":2`)
	assert.Contains(t, buf.String(), `"result":true`)
	assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
}

func TestCodecReadRequestOversizedLineErrors(t *testing.T) {
	oversized := bytes.Repeat([]byte("a"), DefaultMaxLineBytes+1)
	r := bytes.NewBuffer(append(oversized, '\n'))
	codec := NewCodec(r, io.Discard)

	_, err := codec.ReadRequest()
	assert.Error(t, err)
}
