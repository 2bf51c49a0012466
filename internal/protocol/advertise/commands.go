package advertise

import (
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

// advertiseCommand 路由到节点广告协议的命令
type advertiseCommand struct{}

// Protocol 实现 types.Command
func (advertiseCommand) Protocol() types.ProtocolID {
	return protocolids.Advertise
}

// CmdSetProviderState 设置本地提供者状态
//
// 应答: bool，设置后的状态。
type CmdSetProviderState struct {
	advertiseCommand
	Enabled bool
}

// CmdProviderState 读取本地提供者状态
//
// 应答: bool。
type CmdProviderState struct {
	advertiseCommand
}

// CmdQueryAdvertised 查询对端的广告列表
//
// 应答: []types.PeerID；对端不是提供者时返回 ErrNotProviding。
type CmdQueryAdvertised struct {
	advertiseCommand
	Peer types.PeerID
}

// CmdSetRemoteAdvertisement 请求对端开始或停止广告本节点
//
// 应答: nil，对端确认后返回。
type CmdSetRemoteAdvertisement struct {
	advertiseCommand
	Peer    types.PeerID
	Enabled bool
}

// CmdListAdvertised 列出本地广告列表
//
// 应答: []types.PeerID，按 ID 排序。
type CmdListAdvertised struct {
	advertiseCommand
}

// CmdRemoveAdvertised 从本地广告列表移除一个节点
//
// 应答: bool，该节点是否在列表中。
type CmdRemoveAdvertised struct {
	advertiseCommand
	Peer types.PeerID
}

// CmdClearAdvertised 清空本地广告列表
//
// 应答: int，移除的节点数。
type CmdClearAdvertised struct {
	advertiseCommand
}

// CmdListConnected 列出已连接对端
//
// 应答: []types.PeerID，按 ID 排序。
type CmdListConnected struct {
	advertiseCommand
}
