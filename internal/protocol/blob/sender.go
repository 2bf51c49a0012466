package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              内部消息
// ============================================================================

// chunkReady pump 已读出的一个数据块
type chunkReady struct {
	rec        *sendRecord
	seq        uint64
	raw        uint64
	data       []byte
	compressed bool
	final      bool
	digest     []byte
}

// pumpFailed 读取数据源失败
type pumpFailed struct {
	rec *sendRecord
	err error
}

// ============================================================================
//                              本地命令
// ============================================================================

func (h *Handler) send(cmd *CmdSend) (types.BlobID, error) {
	if cmd.Peer.IsEmpty() || cmd.Source == nil {
		return 0, fmt.Errorf("%w: peer and source are required", types.ErrInvalidArgument)
	}
	if len(cmd.Name) > maxNameLen {
		return 0, fmt.Errorf("%w: name longer than %d bytes", types.ErrInvalidArgument, maxNameLen)
	}
	if len(cmd.Digest) > 0 {
		if err := validDigest(cmd.Digest); err != nil {
			return 0, fmt.Errorf("%w: %v", types.ErrInvalidArgument, err)
		}
	}
	if !h.hctx.IsConnected(cmd.Peer) {
		return 0, types.ErrNotConnected
	}

	h.nextID++
	id := h.nextID
	desc := types.BlobDescriptor{
		Size:        cmd.Size,
		Name:        cmd.Name,
		Digest:      cmd.Digest,
		Compression: types.Compression(h.cfg.Compression),
	}
	if err := h.sendTo(cmd.Peer, offerMsg(id, desc)); err != nil {
		return 0, err
	}

	now := h.hctx.Now()
	r := &sendRecord{
		peer:         cmd.Peer,
		id:           id,
		desc:         desc,
		state:        types.StatePendingSend,
		createdAt:    now,
		lastActivity: now,
		source:       cmd.Source,
	}
	if t := h.cfg.PendingSendTimeout.Duration(); t > 0 {
		r.deadline = now.Add(t)
	}
	h.sends[id] = r
	h.seen[cmd.Peer] = struct{}{}

	logger.Debug("发出传输邀约", "peer", cmd.Peer.ShortString(), "id", id, "size", cmd.Size)
	return id, nil
}

func (h *Handler) cancelSend(cmd *CmdCancelSend) error {
	r := h.sends[cmd.ID]
	if r == nil {
		return ErrUnknownTransfer
	}
	h.sendTo(r.peer, cancelMsg(r.id))
	h.finishSend(r, &types.EvtBlobCancelled{
		BaseEvent: h.base(types.EventTypeBlobCancelled),
		Peer:      r.peer,
		ID:        r.id,
		Direction: types.DirSend,
	}, outcomeCancelled)
	return nil
}

// ============================================================================
//                              对端消息
// ============================================================================

// lookupSend 查找来自 from 的消息所指的发送记录
func (h *Handler) lookupSend(from types.PeerID, m *message) *sendRecord {
	r := h.sends[m.id]
	if r == nil || r.peer != from {
		logger.Debug("忽略未知发送传输的消息", "peer", from.ShortString(), "id", m.id, "kind", m.kind)
		return nil
	}
	return r
}

func (h *Handler) onAccept(from types.PeerID, m *message) {
	r := h.lookupSend(from, m)
	if r == nil {
		return
	}
	if r.state != types.StatePendingSend {
		h.violation(from, "accept for ongoing transfer")
		return
	}

	now := h.hctx.Now()
	r.state = types.StateOngoingSend
	r.startedAt = now
	r.lastActivity = now
	r.deadline = now.Add(h.cfg.OngoingSendTimeout.Duration())

	r.credits = make(chan struct{}, h.cfg.ChunkWindow)
	for i := 0; i < h.cfg.ChunkWindow; i++ {
		r.credits <- struct{}{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.pumpCancel = cancel
	go h.runPump(ctx, r, r.desc, r.source, r.credits)

	h.hctx.Emit(&types.EvtBlobAccepted{
		BaseEvent: h.base(types.EventTypeBlobAccepted),
		Peer:      r.peer,
		ID:        r.id,
		Direction: types.DirSend,
	})
}

func (h *Handler) onReject(from types.PeerID, m *message) {
	r := h.lookupSend(from, m)
	if r == nil {
		return
	}
	if r.state != types.StatePendingSend {
		h.violation(from, "reject for ongoing transfer")
		return
	}
	reason := types.RejectReason(m.reason)
	h.finishSend(r, &types.EvtBlobRejected{
		BaseEvent: h.base(types.EventTypeBlobRejected),
		Peer:      r.peer,
		ID:        r.id,
		Direction: types.DirSend,
		Reason:    reason,
	}, outcomeRejected)
}

func (h *Handler) onAck(from types.PeerID, m *message) {
	r := h.lookupSend(from, m)
	if r == nil {
		return
	}
	if r.state != types.StateOngoingSend || len(r.inflight) == 0 || m.seq != r.ackNext {
		h.violation(from, "unexpected ack")
		h.sendTo(r.peer, cancelMsg(r.id))
		h.failSend(r, types.FailProtocolViolation,
			fmt.Errorf("%w: ack %d, expected %d", types.ErrProtocolViolation, m.seq, r.ackNext), false)
		return
	}

	r.acked += r.inflight[0]
	r.inflight = r.inflight[1:]
	r.ackNext++
	last := r.finalSent && len(r.inflight) == 0
	if m.final != last {
		h.violation(from, "final ack mismatch")
		h.sendTo(r.peer, cancelMsg(r.id))
		h.failSend(r, types.FailProtocolViolation,
			fmt.Errorf("%w: final ack mismatch at %d", types.ErrProtocolViolation, m.seq), false)
		return
	}

	now := h.hctx.Now()
	r.lastActivity = now
	r.deadline = now.Add(h.cfg.OngoingSendTimeout.Duration())

	h.hctx.Emit(&types.EvtBlobProgress{
		BaseEvent:   h.base(types.EventTypeBlobProgress),
		Peer:        r.peer,
		ID:          r.id,
		Direction:   types.DirSend,
		Transferred: r.acked,
		Total:       r.desc.Size,
	})

	if last {
		h.finishSend(r, &types.EvtBlobCompleted{
			BaseEvent: h.base(types.EventTypeBlobCompleted),
			Peer:      r.peer,
			ID:        r.id,
			Direction: types.DirSend,
			Bytes:     r.acked,
			Elapsed:   now.Sub(r.startedAt),
		}, outcomeCompleted)
		return
	}

	select {
	case r.credits <- struct{}{}:
	default:
	}
}

func (h *Handler) onAbort(from types.PeerID, m *message) {
	r := h.lookupSend(from, m)
	if r == nil {
		return
	}
	kind := types.FailureKind(m.reason)
	if kind == 0 {
		h.finishSend(r, &types.EvtBlobCancelled{
			BaseEvent: h.base(types.EventTypeBlobCancelled),
			Peer:      r.peer,
			ID:        r.id,
			Direction: types.DirSend,
			Remote:    true,
		}, outcomeCancelled)
		return
	}
	h.failSend(r, types.FailRemoteAbort, fmt.Errorf("%w: %s", ErrRemoteAbort, kind), false)
}

// ============================================================================
//                              数据块发送
// ============================================================================

func (h *Handler) onChunkReady(m *chunkReady) {
	r := m.rec
	if h.sends[r.id] != r {
		return
	}

	body := (&message{
		kind:       kindChunk,
		id:         r.id,
		seq:        m.seq,
		data:       m.data,
		final:      m.final,
		compressed: m.compressed,
		digest:     m.digest,
	}).encode()

	if err := h.sendTo(r.peer, body); err != nil {
		if errors.Is(err, types.ErrNotConnected) {
			h.failSend(r, types.FailTransportLost, types.ErrTransportLost, false)
			return
		}
		h.failSend(r, types.FailIO, err, true)
		return
	}
	r.inflight = append(r.inflight, m.raw)
	r.finalSent = m.final
}

func (h *Handler) onPumpFailed(m *pumpFailed) {
	r := m.rec
	if h.sends[r.id] != r {
		return
	}
	h.failSend(r, types.FailIO, m.err, true)
}

// runPump 读取数据源并逐块投递回循环
//
// 每读出一块前取一个额度，额度在对应数据块被确认后归还，
// 因此未确认的数据块不超过 ChunkWindow。
func (h *Handler) runPump(ctx context.Context, r *sendRecord, desc types.BlobDescriptor, src io.Reader, credits <-chan struct{}) {
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	var limiter *rate.Limiter
	if h.cfg.SendRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.SendRateLimit), h.cfg.SendRateLimit)
	}
	compress := desc.Compression == types.CompressionZstd
	hasher := newHasher()
	remaining := desc.Size

	for seq := uint64(0); ; seq++ {
		select {
		case <-credits:
		case <-ctx.Done():
			return
		}

		n := min(remaining, uint64(h.cfg.ChunkSize))
		buf := make([]byte, n)
		if _, err := io.ReadFull(src, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrSourceShort
			}
			h.hctx.Post(&pumpFailed{rec: r, err: err})
			return
		}
		if limiter != nil && n > 0 {
			if err := limiter.WaitN(ctx, int(n)); err != nil {
				return
			}
		}
		hasher.Write(buf)
		remaining -= n

		ready := &chunkReady{rec: r, seq: seq, raw: n, data: buf, final: remaining == 0}
		if compress && n > 0 {
			if z := h.enc.EncodeAll(buf, nil); len(z) < len(buf) {
				ready.data = z
				ready.compressed = true
			}
		}
		if ready.final && h.cfg.VerifyDigest {
			ready.digest = encodeDigest(hasher.Sum(nil))
		}
		if !h.hctx.Post(ready) || ready.final {
			return
		}
	}
}

// ============================================================================
//                              终态
// ============================================================================

func (h *Handler) finishSend(r *sendRecord, ev types.Event, outcome string) {
	delete(h.sends, r.id)
	r.release()
	h.hctx.Emit(ev)
	h.metrics.BlobFinished(types.DirSend, outcome, r.acked)
	logger.Debug("发送传输结束", "peer", r.peer.ShortString(), "id", r.id, "outcome", outcome)
}

// failSend 发送方传输失败；notify 为 true 时尽力通知接收方
func (h *Handler) failSend(r *sendRecord, kind types.FailureKind, err error, notify bool) {
	if notify {
		h.sendTo(r.peer, cancelMsg(r.id))
	}
	h.finishSend(r, &types.EvtBlobFailed{
		BaseEvent: h.base(types.EventTypeBlobFailed),
		Peer:      r.peer,
		ID:        r.id,
		Direction: types.DirSend,
		Kind:      kind,
		Err:       h.transferError(r.peer, r.id, types.DirSend, kind, err),
	}, outcomeFailed)
}
