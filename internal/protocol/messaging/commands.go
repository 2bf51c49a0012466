package messaging

import (
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

// messagingCommand 路由到直发消息协议的命令
type messagingCommand struct{}

// Protocol 实现 types.Command
func (messagingCommand) Protocol() types.ProtocolID {
	return protocolids.Messaging
}

// CmdSend 向对端发送一条消息
//
// 应答: time.Duration，收到对端确认时的往返时间。
// Message.ID 为空时自动生成；From、To、SentAt 由处理器填写。
type CmdSend struct {
	messagingCommand
	Peer    types.PeerID
	Message types.Message
}

// CmdListConnected 列出已连接对端
//
// 应答: []types.PeerID，按 ID 排序。
type CmdListConnected struct {
	messagingCommand
}
