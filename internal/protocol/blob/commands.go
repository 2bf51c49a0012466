package blob

import (
	"io"

	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

// blobCommand 路由到文件块协议的命令
type blobCommand struct{}

// Protocol 实现 types.Command
func (blobCommand) Protocol() types.ProtocolID {
	return protocolids.Blob
}

// CmdSend 向对端发出传输邀约
//
// 应答: types.BlobID。邀约已发出即应答，后续进展通过事件观察。
// Source 恰好提供 Size 字节；实现 io.Closer 时在传输结束后关闭。
type CmdSend struct {
	blobCommand
	Peer   types.PeerID
	Name   string
	Size   uint64
	Digest []byte
	Source io.Reader
}

// CmdAccept 接受挂起的接收传输
//
// 应答: nil。Sink 实现 io.Closer 时在最后一块写入后关闭，
// 实现 Aborter 时在传输失败后调用 Abort。
type CmdAccept struct {
	blobCommand
	Peer types.PeerID
	ID   types.BlobID
	Sink io.Writer
}

// CmdReject 拒绝挂起的接收传输
//
// 应答: nil。
type CmdReject struct {
	blobCommand
	Peer types.PeerID
	ID   types.BlobID
}

// CmdCancelSend 取消挂起或进行中的发送传输，对端会收到通知
//
// 应答: nil。
type CmdCancelSend struct {
	blobCommand
	ID types.BlobID
}

// CmdCancelRecv 取消挂起或进行中的接收传输，对端会收到通知
//
// 应答: nil。
type CmdCancelRecv struct {
	blobCommand
	Peer types.PeerID
	ID   types.BlobID
}

// CmdListPendingSend 列出挂起的发送传输
//
// 应答: []types.BlobInfo。
type CmdListPendingSend struct{ blobCommand }

// CmdListPendingRecv 列出挂起的接收传输
//
// 应答: []types.BlobInfo。
type CmdListPendingRecv struct{ blobCommand }

// CmdListOngoing 列出进行中的传输（双向）
//
// 应答: []types.BlobInfo。
type CmdListOngoing struct{ blobCommand }

// CmdListConnected 列出交换过文件块消息的已连接对端
//
// 应答: []types.PeerID。
type CmdListConnected struct{ blobCommand }

// Aborter 接收端可选实现，传输失败时丢弃已写入的数据
type Aborter interface {
	Abort() error
}
