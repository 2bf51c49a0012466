package blob

import (
	"errors"
	"fmt"
	"io"

	"github.com/dep2p/go-nest/pkg/types"
)

// chunkWritten 接收端写入一个数据块的结果
type chunkWritten struct {
	rec   *recvRecord
	seq   uint64
	n     uint64
	final bool
	kind  types.FailureKind
	err   error
}

// ============================================================================
//                              本地命令
// ============================================================================

func (h *Handler) accept(cmd *CmdAccept) error {
	if cmd.Sink == nil {
		return fmt.Errorf("%w: sink is required", types.ErrInvalidArgument)
	}
	r := h.recvs[types.TransferKey{Peer: cmd.Peer, ID: cmd.ID}]
	if r == nil {
		return ErrUnknownTransfer
	}
	if r.state == types.StateOngoingRecv {
		return ErrAlreadyOngoing
	}
	if err := h.sendTo(r.key.Peer, acceptMsg(r.key.ID)); err != nil {
		return err
	}

	now := h.hctx.Now()
	r.state = types.StateOngoingRecv
	r.startedAt = now
	r.lastActivity = now
	r.deadline = now.Add(h.cfg.OngoingRecvTimeout.Duration())
	h.setPendingRecv(-1)

	r.writer = newSinkWriter(h.cfg.ChunkWindow)
	go h.runWriter(r, r.writer, cmd.Sink)

	h.hctx.Emit(&types.EvtBlobAccepted{
		BaseEvent: h.base(types.EventTypeBlobAccepted),
		Peer:      r.key.Peer,
		ID:        r.key.ID,
		Direction: types.DirRecv,
	})
	return nil
}

func (h *Handler) reject(cmd *CmdReject) error {
	r := h.recvs[types.TransferKey{Peer: cmd.Peer, ID: cmd.ID}]
	if r == nil {
		return ErrUnknownTransfer
	}
	if r.state != types.StatePendingRecv {
		return ErrNotPending
	}
	h.sendTo(r.key.Peer, rejectMsg(r.key.ID, types.RejectDeclined))
	h.finishRecv(r, &types.EvtBlobRejected{
		BaseEvent: h.base(types.EventTypeBlobRejected),
		Peer:      r.key.Peer,
		ID:        r.key.ID,
		Direction: types.DirRecv,
		Reason:    types.RejectDeclined,
	}, outcomeRejected)
	return nil
}

func (h *Handler) cancelRecv(cmd *CmdCancelRecv) error {
	r := h.recvs[types.TransferKey{Peer: cmd.Peer, ID: cmd.ID}]
	if r == nil {
		return ErrUnknownTransfer
	}
	if r.state == types.StatePendingRecv {
		h.sendTo(r.key.Peer, rejectMsg(r.key.ID, types.RejectDeclined))
	} else {
		h.sendTo(r.key.Peer, abortMsg(r.key.ID, 0))
	}
	h.finishRecv(r, &types.EvtBlobCancelled{
		BaseEvent: h.base(types.EventTypeBlobCancelled),
		Peer:      r.key.Peer,
		ID:        r.key.ID,
		Direction: types.DirRecv,
	}, outcomeCancelled)
	return nil
}

// ============================================================================
//                              对端消息
// ============================================================================

func (h *Handler) onOffer(from types.PeerID, m *message) {
	key := types.TransferKey{Peer: from, ID: m.id}
	if _, ok := h.recvs[key]; ok {
		h.violation(from, "duplicate offer")
		return
	}

	desc := types.BlobDescriptor{
		Size:        m.size,
		Name:        m.name,
		Digest:      m.digest,
		Compression: m.compression,
	}
	if reason := h.checkOffer(desc); reason != "" {
		h.violation(from, reason)
		h.rejectOffer(key, types.RejectViolation)
		return
	}

	// 容量已满：立即拒绝，不创建记录
	if h.pendingRecv >= h.cfg.MaxPendingRecv {
		logger.Debug("挂起接收已满，拒绝邀约", "peer", from.ShortString(), "id", m.id, "pending", h.pendingRecv)
		h.rejectOffer(key, types.RejectCapacity)
		return
	}

	now := h.hctx.Now()
	r := &recvRecord{
		key:          key,
		desc:         desc,
		state:        types.StatePendingRecv,
		createdAt:    now,
		lastActivity: now,
		deadline:     now.Add(h.cfg.PendingRecvTimeout.Duration()),
	}
	h.recvs[key] = r
	h.setPendingRecv(1)

	h.hctx.Emit(&types.EvtBlobRequested{
		BaseEvent:  h.base(types.EventTypeBlobRequested),
		Peer:       from,
		ID:         m.id,
		Descriptor: desc,
	})
}

// checkOffer 返回邀约不合法的原因，合法返回空串
func (h *Handler) checkOffer(d types.BlobDescriptor) string {
	switch {
	case len(d.Name) > maxNameLen:
		return "name too long"
	case d.Compression != types.CompressionNone && d.Compression != types.CompressionZstd:
		return fmt.Sprintf("unsupported compression %q", d.Compression)
	case h.cfg.MaxBlobSize > 0 && d.Size > h.cfg.MaxBlobSize:
		return fmt.Sprintf("size %d exceeds limit %d", d.Size, h.cfg.MaxBlobSize)
	}
	if len(d.Digest) > 0 {
		if err := validDigest(d.Digest); err != nil {
			return err.Error()
		}
	}
	return ""
}

func (h *Handler) rejectOffer(key types.TransferKey, reason types.RejectReason) {
	h.sendTo(key.Peer, rejectMsg(key.ID, reason))
	h.hctx.Emit(&types.EvtBlobRejected{
		BaseEvent: h.base(types.EventTypeBlobRejected),
		Peer:      key.Peer,
		ID:        key.ID,
		Direction: types.DirRecv,
		Reason:    reason,
	})
	h.metrics.BlobFinished(types.DirRecv, outcomeRejected, 0)
}

func (h *Handler) onCancel(from types.PeerID, m *message) {
	r := h.recvs[types.TransferKey{Peer: from, ID: m.id}]
	if r == nil {
		return
	}
	h.finishRecv(r, &types.EvtBlobCancelled{
		BaseEvent: h.base(types.EventTypeBlobCancelled),
		Peer:      r.key.Peer,
		ID:        r.key.ID,
		Direction: types.DirRecv,
		Remote:    true,
	}, outcomeCancelled)
}

func (h *Handler) onChunk(from types.PeerID, m *message) {
	r := h.recvs[types.TransferKey{Peer: from, ID: m.id}]
	if r == nil {
		logger.Debug("忽略未知传输的数据块", "peer", from.ShortString(), "id", m.id, "seq", m.seq)
		return
	}

	violate := func(format string, args ...any) {
		reason := fmt.Sprintf(format, args...)
		h.violation(from, reason)
		h.failRecv(r, types.FailProtocolViolation, fmt.Errorf("%w: %s", types.ErrProtocolViolation, reason), true)
	}

	switch {
	case r.state != types.StateOngoingRecv:
		violate("chunk before accept")
		return
	case r.gotFinal:
		violate("chunk after final")
		return
	case m.seq != r.nextSeq:
		violate("chunk seq %d, expected %d", m.seq, r.nextSeq)
		return
	case !m.final && len(m.data) == 0:
		violate("empty non-final chunk")
		return
	}

	data := m.data
	if m.compressed {
		if r.desc.Compression != types.CompressionZstd {
			violate("compressed chunk without negotiated compression")
			return
		}
		var err error
		data, err = h.dec.DecodeAll(m.data, nil)
		if err != nil {
			violate("decompress chunk %d: %v", m.seq, err)
			return
		}
	} else {
		data = append([]byte(nil), m.data...)
	}
	if len(data) > h.cfg.ChunkSize {
		violate("chunk of %d bytes exceeds %d", len(data), h.cfg.ChunkSize)
		return
	}

	r.received += uint64(len(data))
	if r.received > r.desc.Size || (m.final && r.received != r.desc.Size) {
		h.failRecv(r, types.FailIntegrity,
			fmt.Errorf("%w: received %d of declared %d", ErrSizeMismatch, r.received, r.desc.Size), true)
		return
	}

	now := h.hctx.Now()
	r.nextSeq++
	r.gotFinal = m.final
	r.lastActivity = now
	r.deadline = now.Add(h.cfg.OngoingRecvTimeout.Duration())

	job := writeJob{seq: m.seq, data: data, final: m.final}
	if m.final {
		job.digest = r.desc.Digest
		if len(job.digest) == 0 {
			job.digest = m.digest
		}
	}
	if !r.writer.push(job) {
		violate("chunk window exceeded")
	}
}

// ============================================================================
//                              接收端写入
// ============================================================================

func (h *Handler) onChunkWritten(m *chunkWritten) {
	r := m.rec
	if h.recvs[r.key] != r {
		return
	}
	if m.err != nil {
		h.failRecv(r, m.kind, m.err, true)
		return
	}

	r.written += m.n
	h.hctx.Emit(&types.EvtBlobProgress{
		BaseEvent:   h.base(types.EventTypeBlobProgress),
		Peer:        r.key.Peer,
		ID:          r.key.ID,
		Direction:   types.DirRecv,
		Transferred: r.written,
		Total:       r.desc.Size,
	})

	if err := h.sendTo(r.key.Peer, ackMsg(r.key.ID, m.seq, m.final)); err != nil && !m.final {
		if errors.Is(err, types.ErrNotConnected) {
			h.failRecv(r, types.FailTransportLost, types.ErrTransportLost, false)
			return
		}
		h.failRecv(r, types.FailIO, fmt.Errorf("send ack %d: %w", m.seq, err), true)
		return
	}
	if !m.final {
		return
	}

	now := h.hctx.Now()
	h.finishRecv(r, &types.EvtBlobCompleted{
		BaseEvent: h.base(types.EventTypeBlobCompleted),
		Peer:      r.key.Peer,
		ID:        r.key.ID,
		Direction: types.DirRecv,
		Bytes:     r.written,
		Elapsed:   now.Sub(r.startedAt),
	}, outcomeCompleted)
}

// runWriter 顺序写入数据块，最后一块写入后校验摘要并关闭接收端
func (h *Handler) runWriter(r *recvRecord, w *sinkWriter, sink io.Writer) {
	abort := func() {
		if a, ok := sink.(Aborter); ok {
			if err := a.Abort(); err != nil {
				logger.Debug("丢弃接收端数据失败", "transfer", r.key.String(), "error", err)
			}
			return
		}
		if c, ok := sink.(io.Closer); ok {
			c.Close()
		}
	}
	hasher := newHasher()

	for {
		var job writeJob
		select {
		case <-w.quit:
			abort()
			return
		case job = <-w.jobs:
		}

		res := &chunkWritten{rec: r, seq: job.seq, n: uint64(len(job.data)), final: job.final}
		if _, err := sink.Write(job.data); err != nil {
			abort()
			res.kind, res.err = types.FailIO, err
			h.hctx.Post(res)
			return
		}
		hasher.Write(job.data)

		if job.final {
			switch {
			case len(job.digest) > 0 && !matchDigest(job.digest, hasher.Sum(nil)):
				abort()
				res.kind, res.err = types.FailIntegrity, ErrDigestMismatch
			case w.stopped():
				abort()
				return
			default:
				if c, ok := sink.(io.Closer); ok {
					if err := c.Close(); err != nil {
						abort()
						res.kind, res.err = types.FailIO, err
						break
					}
				}
				// 关闭期间记录已终结（例如超时）：撤销已提交的数据
				if w.stopped() {
					abort()
					return
				}
			}
			h.hctx.Post(res)
			return
		}

		if !h.hctx.Post(res) {
			abort()
			return
		}
	}
}

// ============================================================================
//                              终态
// ============================================================================

func (h *Handler) finishRecv(r *recvRecord, ev types.Event, outcome string) {
	delete(h.recvs, r.key)
	if r.state == types.StatePendingRecv {
		h.setPendingRecv(-1)
	}
	if r.writer != nil {
		r.writer.stop()
	}
	h.hctx.Emit(ev)
	h.metrics.BlobFinished(types.DirRecv, outcome, r.written)
	logger.Debug("接收传输结束", "transfer", r.key.String(), "outcome", outcome)
}

// failRecv 接收方传输失败；notify 为 true 时尽力通知发送方
func (h *Handler) failRecv(r *recvRecord, kind types.FailureKind, err error, notify bool) {
	if notify {
		h.sendTo(r.key.Peer, abortMsg(r.key.ID, kind))
	}
	h.finishRecv(r, &types.EvtBlobFailed{
		BaseEvent: h.base(types.EventTypeBlobFailed),
		Peer:      r.key.Peer,
		ID:        r.key.ID,
		Direction: types.DirRecv,
		Kind:      kind,
		Err:       h.transferError(r.key.Peer, r.key.ID, types.DirRecv, kind, err),
	}, outcomeFailed)
}
