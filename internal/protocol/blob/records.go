package blob

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              发送记录
// ============================================================================

// sendRecord 发送方传输记录（PendingSend 或 OngoingSend）
type sendRecord struct {
	peer  types.PeerID
	id    types.BlobID
	desc  types.BlobDescriptor
	state types.TransferState

	createdAt    time.Time
	startedAt    time.Time
	lastActivity time.Time
	deadline     time.Time

	source io.Reader

	// 以下字段只在 OngoingSend 阶段使用
	pumpCancel context.CancelFunc
	credits    chan struct{}
	inflight   []uint64 // 已发送未确认数据块的原始长度，按序号排列
	ackNext    uint64
	acked      uint64
	finalSent  bool
}

func (r *sendRecord) info() types.BlobInfo {
	return types.BlobInfo{
		Peer:        r.peer,
		ID:          r.id,
		Direction:   types.DirSend,
		State:       r.state,
		Descriptor:  r.desc,
		Transferred: r.acked,
		CreatedAt:   r.createdAt,
		Deadline:    r.deadline,
	}
}

// release 停止读取数据源并关闭它
func (r *sendRecord) release() {
	if r.pumpCancel != nil {
		r.pumpCancel()
		return
	}
	if c, ok := r.source.(io.Closer); ok {
		go c.Close()
	}
}

// ============================================================================
//                              接收记录
// ============================================================================

// recvRecord 接收方传输记录（PendingRecv 或 OngoingRecv）
type recvRecord struct {
	key   types.TransferKey
	desc  types.BlobDescriptor
	state types.TransferState

	createdAt    time.Time
	startedAt    time.Time
	lastActivity time.Time
	deadline     time.Time

	// 以下字段只在 OngoingRecv 阶段使用
	writer   *sinkWriter
	nextSeq  uint64
	received uint64 // 已收到的解压后字节数
	written  uint64 // 已写入接收端的字节数
	gotFinal bool
}

func (r *recvRecord) info() types.BlobInfo {
	return types.BlobInfo{
		Peer:        r.key.Peer,
		ID:          r.key.ID,
		Direction:   types.DirRecv,
		State:       r.state,
		Descriptor:  r.desc,
		Transferred: r.written,
		CreatedAt:   r.createdAt,
		Deadline:    r.deadline,
	}
}

// ============================================================================
//                              接收端写入
// ============================================================================

// writeJob 待写入接收端的一个数据块
type writeJob struct {
	seq    uint64
	data   []byte
	final  bool
	digest []byte
}

// sinkWriter 在独立 goroutine 中写入接收端
//
// 数据块按序号顺序写入；最后一块写入后校验摘要并关闭接收端。
// stop 之后 goroutine 调用接收端的 Abort 并退出。
type sinkWriter struct {
	jobs     chan writeJob
	quit     chan struct{}
	stopOnce sync.Once
}

func newSinkWriter(window int) *sinkWriter {
	return &sinkWriter{
		jobs: make(chan writeJob, window),
		quit: make(chan struct{}),
	}
}

// push 非阻塞投递，队列满返回 false
func (w *sinkWriter) push(job writeJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// stopped 报告 stop 是否已被调用
func (w *sinkWriter) stopped() bool {
	select {
	case <-w.quit:
		return true
	default:
		return false
	}
}

func (w *sinkWriter) stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

// ============================================================================
//                              快照排序
// ============================================================================

func sortInfos(infos []types.BlobInfo) []types.BlobInfo {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Peer != infos[j].Peer {
			return infos[i].Peer < infos[j].Peer
		}
		if infos[i].ID != infos[j].ID {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Direction < infos[j].Direction
	})
	return infos
}
