package messaging

import (
	"context"
	"time"

	"github.com/dep2p/go-nest/internal/core/executor"
	"github.com/dep2p/go-nest/pkg/types"
)

// Client 直发消息协议的类型化客户端
//
// 收到的消息通过执行器事件 *types.EvtMessageReceived 观察。
type Client struct {
	h *executor.Handle
}

// NewClient 基于执行器句柄创建客户端
func NewClient(h *executor.Handle) *Client {
	return &Client{h: h}
}

// Send 发送消息并等待对端确认，返回往返时间
func (c *Client) Send(ctx context.Context, peer types.PeerID, msg types.Message) (time.Duration, error) {
	return executor.Call[time.Duration](ctx, c.h, &CmdSend{Peer: peer, Message: msg})
}

// SendBytes 发送一段负载
func (c *Client) SendBytes(ctx context.Context, peer types.PeerID, payload []byte) (time.Duration, error) {
	return c.Send(ctx, peer, types.Message{Payload: payload})
}

// ListConnected 列出已连接对端
func (c *Client) ListConnected(ctx context.Context) ([]types.PeerID, error) {
	return executor.Call[[]types.PeerID](ctx, c.h, &CmdListConnected{})
}
