package blob

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("protocol/blob")

// 终态结果标签（指标）
const (
	outcomeCompleted = "completed"
	outcomeRejected  = "rejected"
	outcomeTimedOut  = "timed_out"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

// Handler 文件块传输协议处理器
//
// 除 pump 与 sinkWriter goroutine 外，所有字段只在执行器循环内访问。
type Handler struct {
	cfg     config.BlobConfig
	metrics *metrics.Metrics
	hctx    interfaces.HandlerContext

	enc *zstd.Encoder
	dec *zstd.Decoder

	nextID      types.BlobID
	sends       map[types.BlobID]*sendRecord
	recvs       map[types.TransferKey]*recvRecord
	pendingRecv int
	violations  map[types.PeerID]int
	seen        map[types.PeerID]struct{}
}

var _ interfaces.ProtocolHandler = (*Handler)(nil)

// Option 处理器选项
type Option func(*Handler)

// WithMetrics 设置指标集合
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// New 创建文件块传输处理器
func New(cfg config.BlobConfig, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(cfg.ChunkSize)+frameSlack),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	h := &Handler{
		cfg:        cfg,
		enc:        enc,
		dec:        dec,
		sends:      make(map[types.BlobID]*sendRecord),
		recvs:      make(map[types.TransferKey]*recvRecord),
		violations: make(map[types.PeerID]int),
		seen:       make(map[types.PeerID]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ============================================================================
//                              ProtocolHandler 实现
// ============================================================================

// Protocol 返回协议 ID
func (h *Handler) Protocol() types.ProtocolID {
	return protocolids.Blob
}

// MaxFrameSize 入站帧长度上限
func (h *Handler) MaxFrameSize() int {
	return h.cfg.ChunkSize + frameSlack
}

// Attach 保存执行器能力
func (h *Handler) Attach(hctx interfaces.HandlerContext) {
	h.hctx = hctx
}

// HandleCommand 处理本地命令
func (h *Handler) HandleCommand(req *types.Request) {
	switch cmd := req.Cmd.(type) {
	case *CmdSend:
		id, err := h.send(cmd)
		if err != nil {
			req.Reply(nil, err)
			return
		}
		req.Reply(id, nil)
	case *CmdAccept:
		req.Reply(nil, h.accept(cmd))
	case *CmdReject:
		req.Reply(nil, h.reject(cmd))
	case *CmdCancelSend:
		req.Reply(nil, h.cancelSend(cmd))
	case *CmdCancelRecv:
		req.Reply(nil, h.cancelRecv(cmd))
	case *CmdListPendingSend:
		req.Reply(h.listSends(types.StatePendingSend), nil)
	case *CmdListPendingRecv:
		req.Reply(h.listRecvs(types.StatePendingRecv), nil)
	case *CmdListOngoing:
		out := append(h.listSends(types.StateOngoingSend), h.listRecvs(types.StateOngoingRecv)...)
		req.Reply(sortInfos(out), nil)
	case *CmdListConnected:
		req.Reply(h.listConnected(), nil)
	default:
		req.Reply(nil, fmt.Errorf("%w: %T", types.ErrUnknownCommand, req.Cmd))
	}
}

// HandleFrame 处理对端消息
func (h *Handler) HandleFrame(from types.PeerID, body []byte) error {
	m, err := decodeMessage(body)
	if err != nil {
		h.violation(from, err.Error())
		return fmt.Errorf("%w: %v", types.ErrProtocolViolation, err)
	}
	h.seen[from] = struct{}{}

	switch m.kind {
	case kindOffer:
		h.onOffer(from, m)
	case kindChunk:
		h.onChunk(from, m)
	case kindCancel:
		h.onCancel(from, m)
	case kindAccept:
		h.onAccept(from, m)
	case kindReject:
		h.onReject(from, m)
	case kindAck:
		h.onAck(from, m)
	case kindAbort:
		h.onAbort(from, m)
	}
	return nil
}

// HandleInternal 处理 goroutine 投递回来的结果
func (h *Handler) HandleInternal(msg any) {
	switch m := msg.(type) {
	case *chunkReady:
		h.onChunkReady(m)
	case *pumpFailed:
		h.onPumpFailed(m)
	case *chunkWritten:
		h.onChunkWritten(m)
	default:
		logger.Debug("未知内部消息", "type", fmt.Sprintf("%T", msg))
	}
}

// FailEntity 回调失败后终结出错帧或内部消息所属的传输
func (h *Handler) FailEntity(peer types.PeerID, input any, err error) string {
	kind := types.FailInternal
	if errors.Is(err, types.ErrProtocolViolation) {
		kind = types.FailProtocolViolation
	}

	switch m := input.(type) {
	case []byte:
		mk, id, ok := peekTransfer(m)
		if !ok {
			return ""
		}
		switch mk {
		case kindOffer, kindChunk, kindCancel:
			key := types.TransferKey{Peer: peer, ID: id}
			if r := h.recvs[key]; r != nil {
				h.failRecv(r, kind, err, true)
			}
			return key.String()
		default:
			if r := h.sends[id]; r != nil && r.peer == peer {
				h.failSend(r, kind, err, true)
			}
			return sendEntity(id)
		}
	case *chunkReady:
		h.failSendRecord(m.rec, kind, err)
		return sendEntity(m.rec.id)
	case *pumpFailed:
		h.failSendRecord(m.rec, kind, err)
		return sendEntity(m.rec.id)
	case *chunkWritten:
		if h.recvs[m.rec.key] == m.rec {
			h.failRecv(m.rec, kind, err, true)
		}
		return m.rec.key.String()
	}
	return ""
}

func (h *Handler) failSendRecord(r *sendRecord, kind types.FailureKind, err error) {
	if h.sends[r.id] == r {
		h.failSend(r, kind, err, true)
	}
}

func sendEntity(id types.BlobID) string {
	return fmt.Sprintf("send/%d", id)
}

// PeerConnected 连接建立时无需处理
func (h *Handler) PeerConnected(types.PeerID) {}

// PeerDisconnected 连接断开时该对端的所有传输失败
func (h *Handler) PeerDisconnected(peer types.PeerID, cause error) {
	delete(h.seen, peer)
	delete(h.violations, peer)

	err := types.ErrTransportLost
	if cause != nil && !errors.Is(cause, types.ErrTransportLost) {
		err = fmt.Errorf("%w: %v", types.ErrTransportLost, cause)
	}

	for _, r := range h.sendsOf(peer) {
		h.failSend(r, types.FailTransportLost, err, false)
	}
	for _, r := range h.recvsOf(peer) {
		h.failRecv(r, types.FailTransportLost, err, false)
	}
}

// Sweep 检查所有记录的期限
//
// 期限到达（now >= deadline）即超时，零期限永不超时。
func (h *Handler) Sweep(now time.Time) {
	expired := func(deadline time.Time) bool {
		return !deadline.IsZero() && !now.Before(deadline)
	}

	for _, r := range h.sortedSends() {
		if !expired(r.deadline) {
			continue
		}
		h.sendTo(r.peer, cancelMsg(r.id))
		if r.state == types.StatePendingSend {
			h.finishSend(r, &types.EvtBlobTimedOut{
				BaseEvent: h.base(types.EventTypeBlobTimedOut),
				Peer:      r.peer,
				ID:        r.id,
				Direction: types.DirSend,
			}, outcomeTimedOut)
			continue
		}
		h.failSend(r, types.FailTimeout, types.ErrTimeout, false)
	}

	for _, r := range h.sortedRecvs() {
		if !expired(r.deadline) {
			continue
		}
		if r.state == types.StatePendingRecv {
			h.sendTo(r.key.Peer, rejectMsg(r.key.ID, types.RejectTimeout))
			h.finishRecv(r, &types.EvtBlobTimedOut{
				BaseEvent: h.base(types.EventTypeBlobTimedOut),
				Peer:      r.key.Peer,
				ID:        r.key.ID,
				Direction: types.DirRecv,
			}, outcomeTimedOut)
			continue
		}
		h.failRecv(r, types.FailTimeout, types.ErrTimeout, true)
	}
}

// Close 执行器停止时释放所有记录，不再发布事件
func (h *Handler) Close() {
	for id, r := range h.sends {
		r.release()
		delete(h.sends, id)
	}
	for key, r := range h.recvs {
		if r.writer != nil {
			r.writer.stop()
		}
		delete(h.recvs, key)
	}
	h.pendingRecv = 0
	h.metrics.SetBlobPendingRecv(0)
	if err := h.enc.Close(); err != nil {
		logger.Debug("关闭 zstd 编码器失败", "error", err)
	}
	h.dec.Close()
}

// ============================================================================
//                              公共辅助
// ============================================================================

func (h *Handler) base(eventType string) types.BaseEvent {
	return types.NewBaseEventAt(eventType, h.hctx.Now())
}

// sendTo 发送一帧，失败只记录日志
func (h *Handler) sendTo(peer types.PeerID, body []byte) error {
	err := h.hctx.SendFrame(peer, body)
	if err != nil {
		logger.Debug("发送文件块消息失败", "peer", peer.ShortString(), "error", err)
	}
	return err
}

// violation 记录对端的一次协议违规，累计达到上限后断开该对端
func (h *Handler) violation(peer types.PeerID, reason string) {
	h.metrics.BlobViolation()
	h.violations[peer]++
	n := h.violations[peer]
	logger.Debug("对端协议违规", "peer", peer.ShortString(), "reason", reason, "count", n)

	if n >= h.cfg.MaxViolations {
		logger.Warn("对端协议违规次数过多，断开连接", "peer", peer.ShortString(), "count", n)
		delete(h.violations, peer)
		h.hctx.Disconnect(peer)
	}
}

func (h *Handler) transferError(peer types.PeerID, id types.BlobID, dir types.TransferDirection, kind types.FailureKind, err error) *types.TransferError {
	return &types.TransferError{Peer: peer, ID: id, Direction: dir, Kind: kind, Err: err}
}

func (h *Handler) setPendingRecv(delta int) {
	h.pendingRecv += delta
	h.metrics.SetBlobPendingRecv(h.pendingRecv)
}

func (h *Handler) listSends(state types.TransferState) []types.BlobInfo {
	out := []types.BlobInfo{}
	for _, r := range h.sends {
		if r.state == state {
			out = append(out, r.info())
		}
	}
	return sortInfos(out)
}

func (h *Handler) listRecvs(state types.TransferState) []types.BlobInfo {
	out := []types.BlobInfo{}
	for _, r := range h.recvs {
		if r.state == state {
			out = append(out, r.info())
		}
	}
	return sortInfos(out)
}

func (h *Handler) listConnected() []types.PeerID {
	out := make([]types.PeerID, 0, len(h.seen))
	for p := range h.seen {
		if h.hctx.IsConnected(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Handler) sortedSends() []*sendRecord {
	out := make([]*sendRecord, 0, len(h.sends))
	for _, r := range h.sends {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (h *Handler) sortedRecvs() []*recvRecord {
	out := make([]*recvRecord, 0, len(h.recvs))
	for _, r := range h.recvs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.Peer != out[j].key.Peer {
			return out[i].key.Peer < out[j].key.Peer
		}
		return out[i].key.ID < out[j].key.ID
	})
	return out
}

func (h *Handler) sendsOf(peer types.PeerID) []*sendRecord {
	var out []*sendRecord
	for _, r := range h.sortedSends() {
		if r.peer == peer {
			out = append(out, r)
		}
	}
	return out
}

func (h *Handler) recvsOf(peer types.PeerID) []*recvRecord {
	var out []*recvRecord
	for _, r := range h.sortedRecvs() {
		if r.key.Peer == peer {
			out = append(out, r)
		}
	}
	return out
}
