package messaging

import "errors"

// 错误定义
var (
	// ErrMessageTooLarge 消息负载超过 MaxMessageSize
	ErrMessageTooLarge = errors.New("messaging: message too large")

	// ErrInvalidMessage 无效的消息格式
	ErrInvalidMessage = errors.New("messaging: invalid message format")

	// ErrDuplicateID 同一消息 ID 已在等待确认
	ErrDuplicateID = errors.New("messaging: message id already in flight")
)
