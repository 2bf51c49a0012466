package types

import (
	"time"
)

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 基础事件接口
//
// 所有事件变体都嵌入 BaseEvent。协议通过在自己的文件中
// 定义新的 Evt* 类型来扩展事件集合。
type Event interface {
	// Type 返回事件类型
	Type() string

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType string
	Time      time.Time
}

// Type 返回事件类型
func (e BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
	}
}

// NewBaseEventAt 使用指定时间创建基础事件（执行器时钟）
func NewBaseEventAt(eventType string, at time.Time) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      at,
	}
}

// ============================================================================
//                              连接事件
// ============================================================================

// EvtConnectionEstablished 与对端建立连接
type EvtConnectionEstablished struct {
	BaseEvent
	Peer     PeerID
	Addr     string
	Outbound bool
}

// EvtConnectionClosed 与对端的连接关闭
type EvtConnectionClosed struct {
	BaseEvent
	Peer  PeerID
	Cause error
}

// EvtListening 新的监听地址生效
type EvtListening struct {
	BaseEvent
	Addr string
}

// EvtDialFailed 拨号失败
type EvtDialFailed struct {
	BaseEvent
	Addr string
	Err  error
}

// EvtEngine 网络引擎的不透明事件，原样转发
type EvtEngine struct {
	BaseEvent
	Payload any
}

// ============================================================================
//                              执行器事件
// ============================================================================

// EvtHandlerFailed 协议处理器崩溃或返回错误
//
// Entity 标识受影响的实体（例如 BlobID），可能为空。
type EvtHandlerFailed struct {
	BaseEvent
	Protocol ProtocolID
	Peer     PeerID
	Entity   string
	Err      error
}

// ============================================================================
//                              事件类型常量
// ============================================================================

// 事件类型常量
const (
	EventTypeConnectionEstablished = "connection_established"
	EventTypeConnectionClosed      = "connection_closed"
	EventTypeListening             = "listening"
	EventTypeDialFailed            = "dial_failed"
	EventTypeEngine                = "engine"
	EventTypeHandlerFailed         = "handler_failed"

	EventTypeBlobRequested = "blob_requested"
	EventTypeBlobAccepted  = "blob_accepted"
	EventTypeBlobProgress  = "blob_progress"
	EventTypeBlobCompleted = "blob_completed"
	EventTypeBlobRejected  = "blob_rejected"
	EventTypeBlobTimedOut  = "blob_timed_out"
	EventTypeBlobFailed    = "blob_failed"
	EventTypeBlobCancelled = "blob_cancelled"

	EventTypeMessageReceived = "message_received"

	EventTypeAdvertisedPeerChanged  = "advertised_peer_changed"
	EventTypeProviderStateChanged   = "provider_state_changed"
	EventTypeAdvertiseQueryAnswered = "advertise_query_answered"
)
