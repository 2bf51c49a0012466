package storage

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/pkg/types"
)

func newTestStore(t *testing.T) *BlobStore {
	t.Helper()
	cfg := config.DefaultStorageConfig()
	cfg.SegmentSize = 4 * 1024
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBlobStore(db)
}

// TestBlobStore_WriteRead 测试分段写入后完整读回
func TestBlobStore_WriteRead(t *testing.T) {
	s := newTestStore(t)
	peer := types.PeerID("peer-a")

	data := make([]byte, 10*1024+17)
	_, err := rand.Read(data)
	require.NoError(t, err)

	sink := s.NewSink(peer, 7, "a.bin")
	for off := 0; off < len(data); off += 1000 {
		end := off + 1000
		if end > len(data) {
			end = len(data)
		}
		_, err := sink.Write(data[off:end])
		require.NoError(t, err)
	}
	require.NoError(t, sink.Close())

	r, m, err := s.Open(peer, 7)
	require.NoError(t, err)
	assert.Equal(t, "a.bin", m.Name)
	assert.Equal(t, uint64(len(data)), m.Size)
	assert.Equal(t, uint64(3), m.Segments)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	_, err = sink.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrSinkClosed)
}

// TestBlobStore_Abort 测试中止后不留下数据
func TestBlobStore_Abort(t *testing.T) {
	s := newTestStore(t)
	peer := types.PeerID("peer-a")

	sink := s.NewSink(peer, 1, "partial")
	_, err := sink.Write(make([]byte, 9000))
	require.NoError(t, err)
	require.NoError(t, sink.Abort())

	_, _, err = s.Open(peer, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

// TestBlobStore_AbortAfterClose 测试提交后中止删除整个文件块
func TestBlobStore_AbortAfterClose(t *testing.T) {
	s := newTestStore(t)
	peer := types.PeerID("peer-a")

	sink := s.NewSink(peer, 2, "late")
	_, err := sink.Write(make([]byte, 9000))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = s.Stat(peer, 2)
	require.NoError(t, err)

	require.NoError(t, sink.Abort())
	_, _, err = s.Open(peer, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, sink.Abort(), "重复中止应是无操作")
}

// TestBlobStore_ListDelete 测试列出与删除
func TestBlobStore_ListDelete(t *testing.T) {
	s := newTestStore(t)

	for _, k := range []types.TransferKey{{Peer: "b", ID: 2}, {Peer: "a", ID: 9}, {Peer: "a", ID: 3}} {
		sink := s.NewSink(k.Peer, k.ID, "f")
		_, err := sink.Write([]byte("hello"))
		require.NoError(t, err)
		require.NoError(t, sink.Close())
	}

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, types.PeerID("a"), list[0].Peer)
	assert.Equal(t, types.BlobID(3), list[0].ID)
	assert.Equal(t, types.BlobID(9), list[1].ID)
	assert.Equal(t, types.PeerID("b"), list[2].Peer)

	require.NoError(t, s.Delete("a", 9))
	assert.ErrorIs(t, s.Delete("a", 9), ErrNotFound)

	list, err = s.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
	t.Log("✅ 文件块存储列出与删除正常")
}

// TestOpen_InvalidConfig 测试无效配置
func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.DefaultStorageConfig()
	cfg.SegmentSize = 1
	_, err := Open(cfg)
	assert.Error(t, err)
}
