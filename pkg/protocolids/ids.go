package protocolids

import (
	"errors"
	"strings"

	"github.com/dep2p/go-nest/pkg/types"
)

// Prefix 内置协议前缀
const Prefix = "/nest/"

// ============================================================================
// 内置协议 ID
// ============================================================================

// Blob 文件块传输协议
const Blob types.ProtocolID = "/nest/blob/1.0.0"

// Messaging 点对点直发消息协议
const Messaging types.ProtocolID = "/nest/messaging/1.0.0"

// Advertise 节点广告协议
const Advertise types.ProtocolID = "/nest/advertise/1.0.0"

// TestEcho 测试用协议
const TestEcho types.ProtocolID = "/nest/test/echo/1.0.0"

var (
	// ErrReservedProtocol 用户协议使用了保留前缀
	ErrReservedProtocol = errors.New("protocol uses reserved prefix")

	// ErrInvalidProtocolFormat 无效的协议格式
	ErrInvalidProtocolFormat = errors.New("invalid protocol format")
)

// Builtin 返回所有内置协议
func Builtin() []types.ProtocolID {
	return []types.ProtocolID{Blob, Messaging, Advertise}
}

// IsBuiltin 检查协议是否使用内置前缀
func IsBuiltin(p types.ProtocolID) bool {
	return strings.HasPrefix(string(p), Prefix)
}

// ValidateUserProtocol 验证用户协议是否合法
//
// 检查规则：
//   - 必须以 / 开头且至少包含名称与版本两段
//   - 不能以 /nest/ 开头
func ValidateUserProtocol(p types.ProtocolID) error {
	s := string(p)
	if !strings.HasPrefix(s, "/") {
		return ErrInvalidProtocolFormat
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 2 {
		return ErrInvalidProtocolFormat
	}
	for _, part := range parts {
		if part == "" {
			return ErrInvalidProtocolFormat
		}
	}
	if IsBuiltin(p) {
		return ErrReservedProtocol
	}
	return nil
}
