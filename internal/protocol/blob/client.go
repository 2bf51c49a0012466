package blob

import (
	"bytes"
	"context"
	"io"

	"github.com/dep2p/go-nest/internal/core/executor"
	"github.com/dep2p/go-nest/internal/core/storage"
	"github.com/dep2p/go-nest/pkg/types"
)

// Client 文件块协议的类型化客户端
//
// 客户端只提交命令；传输进展通过执行器事件观察。
// 需要观察某个传输的完整事件序列时，应在发出邀约前订阅。
type Client struct {
	h *executor.Handle
}

// NewClient 基于执行器句柄创建客户端
func NewClient(h *executor.Handle) *Client {
	return &Client{h: h}
}

// Send 向对端发出邀约，src 恰好提供 size 字节
func (c *Client) Send(ctx context.Context, peer types.PeerID, name string, size uint64, src io.Reader) (types.BlobID, error) {
	return executor.Call[types.BlobID](ctx, c.h, &CmdSend{Peer: peer, Name: name, Size: size, Source: src})
}

// SendBytes 发送内存中的数据，并在邀约中声明摘要
func (c *Client) SendBytes(ctx context.Context, peer types.PeerID, name string, data []byte) (types.BlobID, error) {
	return executor.Call[types.BlobID](ctx, c.h, &CmdSend{
		Peer:   peer,
		Name:   name,
		Size:   uint64(len(data)),
		Digest: Digest(data),
		Source: bytes.NewReader(data),
	})
}

// Accept 接受挂起的接收传输，数据写入 sink
func (c *Client) Accept(ctx context.Context, peer types.PeerID, id types.BlobID, sink io.Writer) error {
	_, err := c.h.Submit(ctx, &CmdAccept{Peer: peer, ID: id, Sink: sink})
	return err
}

// AcceptToStore 接受挂起的接收传输，数据写入文件块存储
//
// 传输完成后可以用 store.Open(peer, id) 读取。
func (c *Client) AcceptToStore(ctx context.Context, store *storage.BlobStore, peer types.PeerID, id types.BlobID, name string) error {
	sink := store.NewSink(peer, id, name)
	if err := c.Accept(ctx, peer, id, sink); err != nil {
		sink.Abort()
		return err
	}
	return nil
}

// Reject 拒绝挂起的接收传输
func (c *Client) Reject(ctx context.Context, peer types.PeerID, id types.BlobID) error {
	_, err := c.h.Submit(ctx, &CmdReject{Peer: peer, ID: id})
	return err
}

// CancelSend 取消发送传输
func (c *Client) CancelSend(ctx context.Context, id types.BlobID) error {
	_, err := c.h.Submit(ctx, &CmdCancelSend{ID: id})
	return err
}

// CancelRecv 取消接收传输
func (c *Client) CancelRecv(ctx context.Context, peer types.PeerID, id types.BlobID) error {
	_, err := c.h.Submit(ctx, &CmdCancelRecv{Peer: peer, ID: id})
	return err
}

// ListPendingSend 列出挂起的发送传输
func (c *Client) ListPendingSend(ctx context.Context) ([]types.BlobInfo, error) {
	return executor.Call[[]types.BlobInfo](ctx, c.h, &CmdListPendingSend{})
}

// ListPendingRecv 列出挂起的接收传输
func (c *Client) ListPendingRecv(ctx context.Context) ([]types.BlobInfo, error) {
	return executor.Call[[]types.BlobInfo](ctx, c.h, &CmdListPendingRecv{})
}

// ListOngoing 列出进行中的传输
func (c *Client) ListOngoing(ctx context.Context) ([]types.BlobInfo, error) {
	return executor.Call[[]types.BlobInfo](ctx, c.h, &CmdListOngoing{})
}

// ListConnected 列出交换过文件块消息的已连接对端
func (c *Client) ListConnected(ctx context.Context) ([]types.PeerID, error) {
	return executor.Call[[]types.PeerID](ctx, c.h, &CmdListConnected{})
}
