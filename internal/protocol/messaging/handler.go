package messaging

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("protocol/messaging")

// inflight 等待确认的消息
type inflight struct {
	corr     types.CorrelationID
	peer     types.PeerID
	sentAt   time.Time
	deadline time.Time
}

// seenKey 去重缓存的键
type seenKey struct {
	from types.PeerID
	id   string
}

// Handler 直发消息协议处理器
//
// 所有字段只在执行器循环内访问。
type Handler struct {
	cfg     config.MessagingConfig
	metrics *metrics.Metrics
	hctx    interfaces.HandlerContext

	inflight  map[string]*inflight
	seen      *lru.Cache[seenKey, struct{}]
	connected map[types.PeerID]struct{}
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

// New 创建直发消息处理器
func New(cfg config.MessagingConfig, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seen, err := lru.New[seenKey, struct{}](cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}

	h := &Handler{
		cfg:       cfg,
		inflight:  make(map[string]*inflight),
		seen:      seen,
		connected: make(map[types.PeerID]struct{}),
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
	return protocolids.Messaging
}

// MaxFrameSize 入站帧长度上限
func (h *Handler) MaxFrameSize() int {
	return h.cfg.MaxMessageSize + frameSlack
}

// Attach 保存执行器能力
func (h *Handler) Attach(hctx interfaces.HandlerContext) {
	h.hctx = hctx
}

// HandleCommand 处理本地命令
func (h *Handler) HandleCommand(req *types.Request) {
	switch cmd := req.Cmd.(type) {
	case *CmdSend:
		h.send(req, cmd)
	case *CmdListConnected:
		req.Reply(h.listConnected(), nil)
	default:
		req.Reply(nil, fmt.Errorf("%w: %T", types.ErrUnknownCommand, req.Cmd))
	}
}

// HandleFrame 处理对端消息
func (h *Handler) HandleFrame(from types.PeerID, body []byte) error {
	m, err := decodeWire(body)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrProtocolViolation, err)
	}

	switch m.kind {
	case kindMsg:
		h.onMessage(from, m)
	case kindAck:
		h.onAck(from, m)
	}
	return nil
}

// HandleInternal 本协议不使用内部消息
func (h *Handler) HandleInternal(msg any) {
	logger.Debug("未知内部消息", "type", fmt.Sprintf("%T", msg))
}

// PeerConnected 记录已连接对端
func (h *Handler) PeerConnected(peer types.PeerID) {
	h.connected[peer] = struct{}{}
}

// PeerDisconnected 等待该对端确认的发送以 ErrTransportLost 失败
func (h *Handler) PeerDisconnected(peer types.PeerID, _ error) {
	delete(h.connected, peer)
	for id, f := range h.inflight {
		if f.peer != peer {
			continue
		}
		delete(h.inflight, id)
		h.hctx.Resolve(f.corr, nil, types.ErrTransportLost)
	}
}

// Sweep 移除已过期的等待记录，应答由执行器挂起表给出
func (h *Handler) Sweep(now time.Time) {
	for id, f := range h.inflight {
		if !now.Before(f.deadline) {
			delete(h.inflight, id)
		}
	}
}

// Close 丢弃所有等待记录
func (h *Handler) Close() {
	h.inflight = make(map[string]*inflight)
}

// ============================================================================
//                              发送与接收
// ============================================================================

func (h *Handler) send(req *types.Request, cmd *CmdSend) {
	if cmd.Peer.IsEmpty() {
		req.Reply(nil, fmt.Errorf("%w: empty peer", types.ErrInvalidArgument))
		return
	}
	if len(cmd.Message.Payload) > h.cfg.MaxMessageSize {
		req.Reply(nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(cmd.Message.Payload), h.cfg.MaxMessageSize))
		return
	}
	if !h.hctx.IsConnected(cmd.Peer) {
		req.Reply(nil, types.ErrNotConnected)
		return
	}

	id := cmd.Message.ID
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > maxIDLen {
		req.Reply(nil, fmt.Errorf("%w: id longer than %d", types.ErrInvalidArgument, maxIDLen))
		return
	}
	if _, ok := h.inflight[id]; ok {
		req.Reply(nil, ErrDuplicateID)
		return
	}

	now := h.hctx.Now()
	m := wireMsg{kind: kindMsg, id: id, payload: cmd.Message.Payload, sentAt: now}
	if err := h.hctx.SendFrame(cmd.Peer, m.encode()); err != nil {
		req.Reply(nil, err)
		return
	}
	h.metrics.MessageSent()

	deadline := now.Add(h.cfg.SendTimeout.Duration())
	corr := h.hctx.Park(req, deadline)
	h.inflight[id] = &inflight{corr: corr, peer: cmd.Peer, sentAt: now, deadline: deadline}
	logger.Debug("消息已发送", "peer", cmd.Peer.ShortString(), "id", id, "size", len(m.payload))
}

func (h *Handler) onMessage(from types.PeerID, m *wireMsg) {
	if err := h.hctx.SendFrame(from, ackMsg(m.id)); err != nil {
		logger.Debug("发送确认失败", "peer", from.ShortString(), "id", m.id, "error", err)
	}

	if ok, _ := h.seen.ContainsOrAdd(seenKey{from: from, id: m.id}, struct{}{}); ok {
		logger.Debug("忽略重复消息", "peer", from.ShortString(), "id", m.id)
		return
	}
	h.metrics.MessageReceived()

	sentAt := m.sentAt
	if sentAt.IsZero() {
		sentAt = h.hctx.Now()
	}
	h.hctx.Emit(&types.EvtMessageReceived{
		BaseEvent: types.NewBaseEventAt(types.EventTypeMessageReceived, h.hctx.Now()),
		Message: types.Message{
			ID:      m.id,
			From:    from,
			To:      h.hctx.LocalPeer(),
			Payload: m.payload,
			SentAt:  sentAt,
		},
	})
}

func (h *Handler) onAck(from types.PeerID, m *wireMsg) {
	f, ok := h.inflight[m.id]
	if !ok || f.peer != from {
		logger.Debug("忽略未知确认", "peer", from.ShortString(), "id", m.id)
		return
	}
	delete(h.inflight, m.id)

	rtt := h.hctx.Now().Sub(f.sentAt)
	if !h.hctx.Resolve(f.corr, rtt, nil) {
		logger.Debug("确认到达时请求已结束", "peer", from.ShortString(), "id", m.id)
	}
}

func (h *Handler) listConnected() []types.PeerID {
	out := make([]types.PeerID, 0, len(h.connected))
	for p := range h.connected {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
