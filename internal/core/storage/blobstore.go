package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-nest/pkg/lib/frame"
	"github.com/dep2p/go-nest/pkg/types"
)

const (
	prefixBlob     = "b/"
	prefixManifest = "m/"

	fieldManifestName     = 1
	fieldManifestSize     = 2
	fieldManifestSegments = 3
	fieldManifestStoredAt = 4
)

// Manifest 已完成文件块的清单
type Manifest struct {
	Peer     types.PeerID
	ID       types.BlobID
	Name     string
	Size     uint64
	Segments uint64
	StoredAt time.Time
}

// BlobStore 文件块存储
type BlobStore struct {
	db          *DB
	segmentSize int
}

// NewBlobStore 在数据库上创建文件块存储
func NewBlobStore(db *DB) *BlobStore {
	return &BlobStore{db: db, segmentSize: db.cfg.SegmentSize}
}

func blobPrefix(peer types.PeerID, id types.BlobID) []byte {
	return []byte(prefixBlob + string(peer) + "/" + id.String() + "/")
}

func segmentKey(peer types.PeerID, id types.BlobID, seq uint64) []byte {
	key := blobPrefix(peer, id)
	return binary.BigEndian.AppendUint64(key, seq)
}

func manifestKey(peer types.PeerID, id types.BlobID) []byte {
	return []byte(prefixManifest + string(peer) + "/" + id.String())
}

// ============================================================================
//                              Sink - 写入
// ============================================================================

// Sink 写入一个文件块的数据段
//
// Close 写入清单；Abort 删除已写入的数据段。
type Sink struct {
	store *BlobStore
	peer  types.PeerID
	id    types.BlobID
	name  string

	buf       []byte
	seq       uint64
	size      uint64
	closed    bool
	committed bool
}

// NewSink 为来自 peer 的传输 id 创建 Sink，已有同名数据会被覆盖
func (s *BlobStore) NewSink(peer types.PeerID, id types.BlobID, name string) *Sink {
	return &Sink{
		store: s,
		peer:  peer,
		id:    id,
		name:  name,
		buf:   make([]byte, 0, s.segmentSize),
	}
}

// Write 缓冲写入，满一个段时落盘
func (w *Sink) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrSinkClosed
	}
	n := len(p)
	for len(p) > 0 {
		room := w.store.segmentSize - len(w.buf)
		if room > len(p) {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
		p = p[room:]
		if len(w.buf) == w.store.segmentSize {
			if err := w.flush(); err != nil {
				return n - len(p), err
			}
		}
	}
	w.size += uint64(n)
	return n, nil
}

func (w *Sink) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if w.store.db.closed.Load() {
		return ErrClosed
	}
	key := segmentKey(w.peer, w.id, w.seq)
	val := append([]byte(nil), w.buf...)
	err := w.store.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	w.seq++
	w.buf = w.buf[:0]
	return nil
}

// Close 写入剩余数据与清单
func (w *Sink) Close() error {
	if w.closed {
		return ErrSinkClosed
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.closed = true

	m := frame.AppendString(nil, fieldManifestName, w.name)
	m = frame.AppendVarint(m, fieldManifestSize, w.size)
	m = frame.AppendVarint(m, fieldManifestSegments, w.seq)
	m = frame.AppendVarint(m, fieldManifestStoredAt, uint64(time.Now().UnixMilli()))

	err := w.store.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(manifestKey(w.peer, w.id), m)
	})
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	w.committed = true
	return nil
}

// Abort 丢弃已写入的数据段；已提交时删除整个文件块
func (w *Sink) Abort() error {
	if w.committed {
		w.committed = false
		err := w.store.Delete(w.peer, w.id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	w.closed = true
	w.buf = nil
	return w.store.db.db.DropPrefix(blobPrefix(w.peer, w.id))
}

// ============================================================================
//                              读取与管理
// ============================================================================

// Stat 返回已完成文件块的清单
func (s *BlobStore) Stat(peer types.PeerID, id types.BlobID) (Manifest, error) {
	var m Manifest
	err := s.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(manifestKey(peer, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			m, err = decodeManifest(peer, id, val)
			return err
		})
	})
	return m, err
}

// Open 返回已完成文件块的读取器
func (s *BlobStore) Open(peer types.PeerID, id types.BlobID) (io.Reader, Manifest, error) {
	m, err := s.Stat(peer, id)
	if err != nil {
		return nil, Manifest{}, err
	}
	return &segmentReader{store: s, m: m}, m, nil
}

// List 返回所有已完成文件块的清单，按对端与 ID 排序
func (s *BlobStore) List() ([]Manifest, error) {
	var out []Manifest
	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixManifest)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			peer, id, ok := parseManifestKey(item.Key())
			if !ok {
				continue
			}
			err := item.Value(func(val []byte) error {
				m, err := decodeManifest(peer, id, val)
				if err != nil {
					return err
				}
				out = append(out, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Peer != out[j].Peer {
			return out[i].Peer < out[j].Peer
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// Delete 删除文件块的数据段与清单
func (s *BlobStore) Delete(peer types.PeerID, id types.BlobID) error {
	if _, err := s.Stat(peer, id); err != nil {
		return err
	}
	if err := s.db.db.DropPrefix(blobPrefix(peer, id)); err != nil {
		return err
	}
	return s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(manifestKey(peer, id))
	})
}

func parseManifestKey(key []byte) (types.PeerID, types.BlobID, bool) {
	rest := bytes.TrimPrefix(key, []byte(prefixManifest))
	i := bytes.LastIndexByte(rest, '/')
	if i <= 0 {
		return "", 0, false
	}
	var id uint64
	if _, err := fmt.Sscan(string(rest[i+1:]), &id); err != nil {
		return "", 0, false
	}
	return types.PeerID(rest[:i]), types.BlobID(id), true
}

func decodeManifest(peer types.PeerID, id types.BlobID, val []byte) (Manifest, error) {
	m := Manifest{Peer: peer, ID: id}
	err := frame.Fields(val, func(f frame.Field) error {
		switch f.Num {
		case fieldManifestName:
			m.Name = string(f.Bytes)
		case fieldManifestSize:
			m.Size = f.Varint
		case fieldManifestSegments:
			m.Segments = f.Varint
		case fieldManifestStoredAt:
			m.StoredAt = time.UnixMilli(int64(f.Varint))
		}
		return nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return m, nil
}

// segmentReader 顺序读取数据段
type segmentReader struct {
	store *BlobStore
	m     Manifest
	seq   uint64
	cur   []byte
}

func (r *segmentReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.seq >= r.m.Segments {
			return 0, io.EOF
		}
		err := r.store.db.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(segmentKey(r.m.Peer, r.m.ID, r.seq))
			if err != nil {
				return err
			}
			r.cur, err = item.ValueCopy(nil)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("%w: segment %d: %v", ErrCorrupted, r.seq, err)
		}
		r.seq++
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}
