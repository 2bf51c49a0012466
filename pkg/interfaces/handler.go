package interfaces

import (
	"time"

	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              HandlerContext 接口
// ============================================================================

// HandlerContext 执行器交给协议处理器的能力集合
//
// 除 Post 外，所有方法只能在执行器循环内（即处理器回调中）调用。
type HandlerContext interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// Now 返回执行器时钟的当前时间
	Now() time.Time

	// Emit 发布事件，同一处理器发布的事件保持顺序
	Emit(ev types.Event)

	// SendFrame 将一帧排入到对端的协议出站队列（非阻塞）
	//
	// 对端未连接时返回 types.ErrNotConnected。
	SendFrame(peer types.PeerID, frame []byte) error

	// Disconnect 请求引擎断开对端
	Disconnect(peer types.PeerID)

	// IsConnected 检查对端是否已连接
	IsConnected(peer types.PeerID) bool

	// Park 将请求放入挂起表，deadline 为零表示不限时
	//
	// 到期未解决的请求以 types.ErrTimeout 应答；
	// 调用方放弃等待的请求会在下一次清扫时被移除。
	Park(req *types.Request, deadline time.Time) types.CorrelationID

	// Resolve 解决挂起请求，返回该请求是否仍在表中
	Resolve(id types.CorrelationID, v any, err error) bool

	// Post 从任意 goroutine 投递内部消息，稍后在循环内交给 HandleInternal
	//
	// 执行器停止后返回 false。
	Post(msg any) bool
}

// ============================================================================
//                              ProtocolHandler 接口
// ============================================================================

// ProtocolHandler 自定义协议处理器
//
// 所有回调都在执行器循环内串行调用，处理器内部状态无需加锁。
// 回调不得阻塞：阻塞工作应放到 goroutine 中，结果经 Post 回到循环。
// 回调中的 panic 与返回的错误会被执行器转换为 EvtHandlerFailed。
type ProtocolHandler interface {
	// Protocol 返回协议 ID
	Protocol() types.ProtocolID

	// Attach 在注册时调用一次，先于其他任何回调
	Attach(hctx HandlerContext)

	// HandleCommand 处理路由到本协议的命令
	HandleCommand(req *types.Request)

	// HandleFrame 处理对端发来的一帧
	HandleFrame(from types.PeerID, frame []byte) error

	// HandleInternal 处理经 Post 投递的内部消息
	HandleInternal(msg any)

	// PeerConnected 对端连接建立
	PeerConnected(peer types.PeerID)

	// PeerDisconnected 对端连接关闭
	PeerDisconnected(peer types.PeerID, cause error)

	// Sweep 检查带期限的记录
	Sweep(now time.Time)

	// Close 执行器停止时调用
	Close()
}
