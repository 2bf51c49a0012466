package advertise

import "errors"

// 错误定义
var (
	// ErrNotProviding 被查询的对端不是广告提供者
	ErrNotProviding = errors.New("advertise: peer is not providing")

	// ErrAdvertiseRefused 对端拒绝广告本节点（列表已满）
	ErrAdvertiseRefused = errors.New("advertise: remote refused advertisement")

	// ErrInvalidMessage 无效消息
	ErrInvalidMessage = errors.New("advertise: invalid message")
)
