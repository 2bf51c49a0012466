package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nest/pkg/types"
)

// TestCodec_Chunk 测试数据块消息的编解码
func TestCodec_Chunk(t *testing.T) {
	digest := Digest([]byte("abc"))
	in := &message{kind: kindChunk, id: 42, seq: 7, data: []byte("abc"), final: true, digest: digest}

	out, err := decodeMessage(in.encode())
	require.NoError(t, err)
	assert.Equal(t, kindChunk, out.kind)
	assert.Equal(t, types.BlobID(42), out.id)
	assert.Equal(t, uint64(7), out.seq)
	assert.Equal(t, []byte("abc"), out.data)
	assert.True(t, out.final)
	assert.False(t, out.compressed)
	assert.Equal(t, digest, out.digest)
}

// TestCodec_Offer 测试邀约中的描述字段
func TestCodec_Offer(t *testing.T) {
	d := types.BlobDescriptor{Size: 1 << 40, Name: "a.iso", Compression: types.CompressionZstd}
	out, err := decodeMessage(offerMsg(3, d))
	require.NoError(t, err)
	assert.Equal(t, kindOffer, out.kind)
	assert.Equal(t, d.Size, out.size)
	assert.Equal(t, d.Name, out.name)
	assert.Equal(t, d.Compression, out.compression)
	assert.Empty(t, out.digest)
}

// TestCodec_Malformed 测试非法消息
func TestCodec_Malformed(t *testing.T) {
	_, err := decodeMessage([]byte{0x08, 0x63, 0x10, 0x01})
	assert.ErrorIs(t, err, errMalformed, "未知类别")

	_, err = decodeMessage([]byte{0x08, 0x01})
	assert.ErrorIs(t, err, errMalformed, "缺少 id")

	_, err = decodeMessage([]byte{0x08})
	assert.Error(t, err, "截断的字段")
}

// TestDigest 测试摘要校验
func TestDigest(t *testing.T) {
	d := Digest([]byte("hello"))
	require.NoError(t, validDigest(d))

	h := newHasher()
	h.Write([]byte("hello"))
	assert.True(t, matchDigest(d, h.Sum(nil)))
	assert.False(t, matchDigest(Digest([]byte("world")), h.Sum(nil)))

	assert.Error(t, validDigest([]byte{0x12, 0x01, 0x00}))
}
