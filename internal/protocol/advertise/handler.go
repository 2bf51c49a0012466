package advertise

import (
	"fmt"
	"sort"
	"time"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("protocol/advertise")

// outstanding 等待对端应答的请求
type outstanding struct {
	corr     types.CorrelationID
	peer     types.PeerID
	kind     msgKind
	deadline time.Time
}

// Handler 节点广告协议处理器
//
// 所有字段只在执行器循环内访问。
type Handler struct {
	cfg  config.AdvertiseConfig
	hctx interfaces.HandlerContext

	providing  bool
	advertised map[types.PeerID]struct{}
	connected  map[types.PeerID]struct{}

	nextReq uint64
	waiting map[uint64]*outstanding
}

var _ interfaces.ProtocolHandler = (*Handler)(nil)

// New 创建节点广告处理器
func New(cfg config.AdvertiseConfig) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handler{
		cfg:        cfg,
		providing:  cfg.Provider,
		advertised: make(map[types.PeerID]struct{}),
		connected:  make(map[types.PeerID]struct{}),
		waiting:    make(map[uint64]*outstanding),
	}, nil
}

// ============================================================================
//                              ProtocolHandler 实现
// ============================================================================

// Protocol 返回协议 ID
func (h *Handler) Protocol() types.ProtocolID {
	return protocolids.Advertise
}

// Attach 保存执行器能力
func (h *Handler) Attach(hctx interfaces.HandlerContext) {
	h.hctx = hctx
}

// HandleCommand 处理本地命令
func (h *Handler) HandleCommand(req *types.Request) {
	switch cmd := req.Cmd.(type) {
	case *CmdSetProviderState:
		h.setProviderState(cmd.Enabled)
		req.Reply(h.providing, nil)
	case *CmdProviderState:
		req.Reply(h.providing, nil)
	case *CmdQueryAdvertised:
		h.request(req, cmd.Peer, &message{kind: kindQuery})
	case *CmdSetRemoteAdvertisement:
		h.request(req, cmd.Peer, &message{kind: kindSet, flag: cmd.Enabled})
	case *CmdListAdvertised:
		req.Reply(sortedPeers(h.advertised), nil)
	case *CmdRemoveAdvertised:
		req.Reply(h.remove(cmd.Peer), nil)
	case *CmdClearAdvertised:
		req.Reply(h.clear(), nil)
	case *CmdListConnected:
		req.Reply(sortedPeers(h.connected), nil)
	default:
		req.Reply(nil, fmt.Errorf("%w: %T", types.ErrUnknownCommand, req.Cmd))
	}
}

// HandleFrame 处理对端消息
func (h *Handler) HandleFrame(from types.PeerID, body []byte) error {
	m, err := decodeMessage(body)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrProtocolViolation, err)
	}

	switch m.kind {
	case kindQuery:
		h.onQuery(from, m)
	case kindSet:
		h.onSet(from, m)
	case kindAnswer, kindSetResult:
		h.onReply(from, m)
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

// PeerDisconnected 移除该对端的广告，等待它应答的请求以 ErrTransportLost 失败
func (h *Handler) PeerDisconnected(peer types.PeerID, _ error) {
	delete(h.connected, peer)
	h.remove(peer)

	for req, o := range h.waiting {
		if o.peer != peer {
			continue
		}
		delete(h.waiting, req)
		h.hctx.Resolve(o.corr, nil, types.ErrTransportLost)
	}
}

// Sweep 移除已过期的等待记录，应答由执行器挂起表给出
func (h *Handler) Sweep(now time.Time) {
	for req, o := range h.waiting {
		if !now.Before(o.deadline) {
			delete(h.waiting, req)
		}
	}
}

// Close 丢弃所有等待记录
func (h *Handler) Close() {
	h.waiting = make(map[uint64]*outstanding)
}

// ============================================================================
//                              本地状态
// ============================================================================

func (h *Handler) setProviderState(enabled bool) {
	if h.providing == enabled {
		return
	}
	h.providing = enabled
	logger.Info("广告提供者状态变化", "enabled", enabled)
	h.hctx.Emit(&types.EvtProviderStateChanged{
		BaseEvent: types.NewBaseEventAt(types.EventTypeProviderStateChanged, h.hctx.Now()),
		Enabled:   enabled,
	})
}

func (h *Handler) add(peer types.PeerID) bool {
	if _, ok := h.advertised[peer]; ok {
		return true
	}
	if len(h.advertised) >= h.cfg.MaxAdvertised {
		return false
	}
	h.advertised[peer] = struct{}{}
	logger.Debug("开始广告节点", "peer", peer.ShortString())
	h.emitChanged(peer, true)
	return true
}

func (h *Handler) remove(peer types.PeerID) bool {
	if _, ok := h.advertised[peer]; !ok {
		return false
	}
	delete(h.advertised, peer)
	logger.Debug("停止广告节点", "peer", peer.ShortString())
	h.emitChanged(peer, false)
	return true
}

func (h *Handler) clear() int {
	peers := sortedPeers(h.advertised)
	for _, p := range peers {
		h.remove(p)
	}
	return len(peers)
}

func (h *Handler) emitChanged(peer types.PeerID, added bool) {
	h.hctx.Emit(&types.EvtAdvertisedPeerChanged{
		BaseEvent: types.NewBaseEventAt(types.EventTypeAdvertisedPeerChanged, h.hctx.Now()),
		Peer:      peer,
		Added:     added,
	})
}

// ============================================================================
//                              请求与应答
// ============================================================================

func (h *Handler) request(req *types.Request, peer types.PeerID, m *message) {
	if peer.IsEmpty() {
		req.Reply(nil, fmt.Errorf("%w: empty peer", types.ErrInvalidArgument))
		return
	}
	if !h.hctx.IsConnected(peer) {
		req.Reply(nil, types.ErrNotConnected)
		return
	}

	h.nextReq++
	m.req = h.nextReq
	if err := h.hctx.SendFrame(peer, m.encode()); err != nil {
		req.Reply(nil, err)
		return
	}

	deadline := h.hctx.Now().Add(h.cfg.QueryTimeout.Duration())
	h.waiting[m.req] = &outstanding{
		corr:     h.hctx.Park(req, deadline),
		peer:     peer,
		kind:     m.kind,
		deadline: deadline,
	}
}

func (h *Handler) onQuery(from types.PeerID, m *message) {
	answer := message{kind: kindAnswer, req: m.req, flag: h.providing}
	if h.providing {
		answer.peers = sortedPeers(h.advertised)
	}
	if err := h.hctx.SendFrame(from, answer.encode()); err != nil {
		logger.Debug("应答查询失败", "peer", from.ShortString(), "error", err)
	}
}

func (h *Handler) onSet(from types.PeerID, m *message) {
	ok := true
	if m.flag {
		ok = h.add(from)
	} else {
		h.remove(from)
	}
	if !ok {
		logger.Warn("广告列表已满，拒绝节点", "peer", from.ShortString(), "max", h.cfg.MaxAdvertised)
	}

	result := message{kind: kindSetResult, req: m.req, flag: ok}
	if err := h.hctx.SendFrame(from, result.encode()); err != nil {
		logger.Debug("应答设置失败", "peer", from.ShortString(), "error", err)
	}
}

func (h *Handler) onReply(from types.PeerID, m *message) {
	o, ok := h.waiting[m.req]
	if !ok || o.peer != from {
		logger.Debug("忽略未知应答", "peer", from.ShortString(), "kind", m.kind, "req", m.req)
		return
	}
	if (o.kind == kindQuery) != (m.kind == kindAnswer) {
		logger.Debug("应答类别不匹配", "peer", from.ShortString(), "kind", m.kind, "req", m.req)
		return
	}
	delete(h.waiting, m.req)

	if m.kind == kindSetResult {
		if !m.flag {
			h.hctx.Resolve(o.corr, nil, ErrAdvertiseRefused)
			return
		}
		h.hctx.Resolve(o.corr, nil, nil)
		return
	}

	peers := m.peers
	if peers == nil {
		peers = []types.PeerID{}
	}
	h.hctx.Emit(&types.EvtAdvertiseQueryAnswered{
		BaseEvent: types.NewBaseEventAt(types.EventTypeAdvertiseQueryAnswered, h.hctx.Now()),
		From:      from,
		Providing: m.flag,
		Peers:     peers,
	})
	if !m.flag {
		h.hctx.Resolve(o.corr, nil, fmt.Errorf("%w: %s", ErrNotProviding, from.ShortString()))
		return
	}
	h.hctx.Resolve(o.corr, peers, nil)
}

func sortedPeers(set map[types.PeerID]struct{}) []types.PeerID {
	out := make([]types.PeerID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
