package executor

import (
	"context"
	"fmt"

	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              Handle - 客户端句柄
// ============================================================================

// Handle 可共享的执行器客户端句柄
//
// 句柄只通过命令和事件与执行器交互，可以被任意多个 goroutine 复制和并发使用。
type Handle struct {
	e *Executor
}

// Submit 提交命令并等待应答
func (h *Handle) Submit(ctx context.Context, cmd types.Command) (any, error) {
	return h.e.Submit(ctx, cmd)
}

// Post 提交无需应答的命令
func (h *Handle) Post(cmd types.Command) error {
	return h.e.Post(cmd)
}

// Subscribe 订阅事件
func (h *Handle) Subscribe(opts ...eventbus.SubscriptionOpt) *eventbus.Subscription {
	return h.e.Subscribe(opts...)
}

// LocalPeer 返回本地节点 ID
func (h *Handle) LocalPeer() types.PeerID {
	return h.e.LocalPeer()
}

// Listen 在地址上开始监听，返回实际绑定的地址
func (h *Handle) Listen(ctx context.Context, addr string) (string, error) {
	return Call[string](ctx, h, &CmdListen{Addr: addr})
}

// Dial 拨号并返回对端节点 ID
func (h *Handle) Dial(ctx context.Context, addr string) (types.PeerID, error) {
	return Call[types.PeerID](ctx, h, &CmdDial{Addr: addr})
}

// Disconnect 断开对端
func (h *Handle) Disconnect(ctx context.Context, peer types.PeerID) error {
	_, err := h.Submit(ctx, &CmdDisconnect{Peer: peer})
	return err
}

// IsConnected 检查是否已连接
func (h *Handle) IsConnected(ctx context.Context, peer types.PeerID) (bool, error) {
	return Call[bool](ctx, h, &CmdIsConnected{Peer: peer})
}

// ListConnected 列出已连接对端
func (h *Handle) ListConnected(ctx context.Context) ([]types.PeerID, error) {
	return Call[[]types.PeerID](ctx, h, &CmdListConnected{})
}

// ListListeners 列出监听地址
func (h *Handle) ListListeners(ctx context.Context) ([]string, error) {
	return Call[[]string](ctx, h, &CmdListListeners{})
}

// Call 提交命令并将应答断言为 T
func Call[T any](ctx context.Context, h *Handle, cmd types.Command) (T, error) {
	var zero T
	v, err := h.Submit(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedReply, v, zero)
	}
	return out, nil
}
