package interfaces

import (
	"context"
	"io"

	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              Stream 接口
// ============================================================================

// Stream 已协商到某个协议的双向字节流
type Stream interface {
	io.ReadWriteCloser

	// Reset 立即中止流（双向）
	Reset() error

	// Protocol 返回协商出的协议
	Protocol() types.ProtocolID

	// RemotePeer 返回对端节点 ID
	RemotePeer() types.PeerID
}

// ============================================================================
//                              Engine 事件
// ============================================================================

// EngineEventKind 引擎事件类别
type EngineEventKind int

const (
	// EngineConnEstablished 连接建立
	EngineConnEstablished EngineEventKind = iota + 1
	// EngineConnClosed 连接关闭
	EngineConnClosed
	// EngineInboundStream 收到已协商的入站流
	EngineInboundStream
	// EngineListening 新的监听地址
	EngineListening
	// EngineOpaque 其他引擎事件，执行器原样转发
	EngineOpaque
)

// String 返回事件类别名称
func (k EngineEventKind) String() string {
	switch k {
	case EngineConnEstablished:
		return "conn_established"
	case EngineConnClosed:
		return "conn_closed"
	case EngineInboundStream:
		return "inbound_stream"
	case EngineListening:
		return "listening"
	case EngineOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// EngineEvent 引擎产生的事件
type EngineEvent struct {
	Kind     EngineEventKind
	Peer     types.PeerID
	Addr     string
	Outbound bool
	Stream   Stream
	Err      error
	Payload  any
}

// ============================================================================
//                              Engine 接口
// ============================================================================

// Engine 网络引擎
//
// 引擎只被执行器驱动。可能阻塞的方法（Listen、Dial、OpenStream）
// 由执行器放到独立 goroutine 中调用，其余方法必须是非阻塞的。
type Engine interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// Listen 在地址上开始监听，返回实际绑定的地址
	Listen(addr string) (string, error)

	// ListenAddrs 返回当前所有监听地址
	ListenAddrs() []string

	// Dial 拨号并完成握手，返回对端节点 ID
	Dial(ctx context.Context, addr string) (types.PeerID, error)

	// Disconnect 断开与对端的所有连接
	Disconnect(peer types.PeerID) error

	// IsConnected 检查是否与对端存在连接
	IsConnected(peer types.PeerID) bool

	// Peers 返回已连接的对端列表
	Peers() []types.PeerID

	// SetProtocols 设置入站流可协商的协议集合
	SetProtocols(protocols []types.ProtocolID)

	// OpenStream 向对端打开一条协议流
	OpenStream(ctx context.Context, peer types.PeerID, protocol types.ProtocolID) (Stream, error)

	// Events 返回引擎事件通道，引擎关闭后通道被关闭
	Events() <-chan EngineEvent

	// Close 关闭引擎及所有连接
	Close() error
}
