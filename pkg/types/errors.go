package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrEmptyProtocolID 空协议 ID
	ErrEmptyProtocolID = errors.New("empty protocol ID")
)

// ============================================================================
//                              执行器相关错误
// ============================================================================

var (
	// ErrExecutorShutDown 执行器已停止，命令无法再被接受或应答
	ErrExecutorShutDown = errors.New("executor shut down")

	// ErrHandlerFailed 协议处理器在处理请求时崩溃
	ErrHandlerFailed = errors.New("protocol handler failed")

	// ErrUnknownProtocol 命令指向未注册的协议
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrUnknownCommand 处理器无法识别的命令变体
	ErrUnknownCommand = errors.New("unknown command")
)

// ============================================================================
//                              连接相关错误
// ============================================================================

var (
	// ErrNotConnected 未连接
	ErrNotConnected = errors.New("not connected")

	// ErrTransportLost 底层连接在操作进行中断开
	ErrTransportLost = errors.New("transport lost")
)

// ============================================================================
//                              协议相关错误
// ============================================================================

var (
	// ErrProtocolViolation 对端发送了格式错误或状态不符的消息
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrResourceExhausted 接收方挂起容量已满
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrTimeout 操作超时
	ErrTimeout = errors.New("operation timeout")

	// ErrInvalidArgument 参数无效
	ErrInvalidArgument = errors.New("invalid argument")
)

// ============================================================================
//                              TransferError
// ============================================================================

// TransferError 描述单个传输的失败
//
// Err 总是包装上面的某个哨兵错误，可以用 errors.Is 匹配。
type TransferError struct {
	Peer      PeerID
	ID        BlobID
	Direction TransferDirection
	Kind      FailureKind
	Err       error
}

// Error 实现 error 接口
func (e *TransferError) Error() string {
	return fmt.Sprintf("blob %s %s with %s failed (%s): %v",
		e.Direction, e.ID, e.Peer.ShortString(), e.Kind, e.Err)
}

// Unwrap 返回底层错误
func (e *TransferError) Unwrap() error {
	return e.Err
}
