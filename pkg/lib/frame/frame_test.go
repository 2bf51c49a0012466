package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// TestReader_Sequence 测试连续帧读取
func TestReader_Sequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte("one")))
	require.NoError(t, Write(&buf, nil))
	require.NoError(t, Write(&buf, bytes.Repeat([]byte{7}, 300)))

	r := NewReader(&buf, 0)

	b, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), b)

	b, err = r.Next()
	require.NoError(t, err)
	assert.Empty(t, b)

	b, err = r.Next()
	require.NoError(t, err)
	assert.Len(t, b, 300)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// TestReader_TooLarge 测试帧长度上限
func TestReader_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, make([]byte, 64)))

	_, err := NewReader(&buf, 32).Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// TestReader_Truncated 测试帧中途结束
func TestReader_Truncated(t *testing.T) {
	full := Append(nil, []byte("truncated body"))
	_, err := NewReader(bytes.NewReader(full[:5]), 0).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestFields 测试字段遍历
func TestFields(t *testing.T) {
	var body []byte
	body = AppendVarint(body, 1, 4)
	body = AppendString(body, 2, "name")
	body = AppendBool(body, 3, true)
	body = protowire.AppendTag(body, 9, protowire.Fixed32Type)
	body = protowire.AppendFixed32(body, 1)

	var got []Field
	require.NoError(t, Fields(body, func(f Field) error {
		got = append(got, f)
		return nil
	}))

	require.Len(t, got, 3)
	assert.Equal(t, uint64(4), got[0].Varint)
	assert.Equal(t, "name", string(got[1].Bytes))
	assert.Equal(t, uint64(1), got[2].Varint)

	stop := errors.New("stop")
	assert.ErrorIs(t, Fields(body, func(Field) error { return stop }), stop)
	assert.ErrorIs(t, Fields([]byte{0x0a, 0x05, 'a'}, func(Field) error { return nil }), ErrMalformed)
}
