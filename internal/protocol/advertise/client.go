package advertise

import (
	"context"

	"github.com/dep2p/go-nest/internal/core/executor"
	"github.com/dep2p/go-nest/pkg/types"
)

// Client 节点广告协议的类型化客户端
type Client struct {
	h *executor.Handle
}

// NewClient 基于执行器句柄创建客户端
func NewClient(h *executor.Handle) *Client {
	return &Client{h: h}
}

// SetProviderState 开启或关闭本地提供者
func (c *Client) SetProviderState(ctx context.Context, enabled bool) (bool, error) {
	return executor.Call[bool](ctx, c.h, &CmdSetProviderState{Enabled: enabled})
}

// ProviderState 本地是否为提供者
func (c *Client) ProviderState(ctx context.Context) (bool, error) {
	return executor.Call[bool](ctx, c.h, &CmdProviderState{})
}

// QueryAdvertised 查询对端广告的节点
func (c *Client) QueryAdvertised(ctx context.Context, peer types.PeerID) ([]types.PeerID, error) {
	return executor.Call[[]types.PeerID](ctx, c.h, &CmdQueryAdvertised{Peer: peer})
}

// SetRemoteAdvertisement 请求对端开始或停止广告本节点
func (c *Client) SetRemoteAdvertisement(ctx context.Context, peer types.PeerID, enabled bool) error {
	_, err := c.h.Submit(ctx, &CmdSetRemoteAdvertisement{Peer: peer, Enabled: enabled})
	return err
}

// ListAdvertised 列出本地广告的节点
func (c *Client) ListAdvertised(ctx context.Context) ([]types.PeerID, error) {
	return executor.Call[[]types.PeerID](ctx, c.h, &CmdListAdvertised{})
}

// RemoveAdvertised 停止广告一个节点，返回它是否在列表中
func (c *Client) RemoveAdvertised(ctx context.Context, peer types.PeerID) (bool, error) {
	return executor.Call[bool](ctx, c.h, &CmdRemoveAdvertised{Peer: peer})
}

// ClearAdvertised 清空本地广告列表
func (c *Client) ClearAdvertised(ctx context.Context) (int, error) {
	return executor.Call[int](ctx, c.h, &CmdClearAdvertised{})
}

// ListConnected 列出已连接对端
func (c *Client) ListConnected(ctx context.Context) ([]types.PeerID, error) {
	return executor.Call[[]types.PeerID](ctx, c.h, &CmdListConnected{})
}
