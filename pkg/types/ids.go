package types

import (
	"errors"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 由公钥的 sha2-256 multihash 经 Base58 编码得到，不可变、可比较。
type PeerID string

// EmptyPeerID 空节点 ID
const EmptyPeerID PeerID = ""

// String 返回 PeerID 的字符串表示
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回 PeerID 的短字符串表示（日志使用）
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// IsEmpty 检查是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Validate 验证 PeerID 是否为合法的 Base58 multihash
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrEmptyPeerID
	}
	raw, err := base58.Decode(string(id))
	if err != nil {
		return errors.Join(ErrInvalidPeerID, err)
	}
	if _, err := multihash.Decode(raw); err != nil {
		return errors.Join(ErrInvalidPeerID, err)
	}
	return nil
}

// PeerIDFromPublicKey 从原始公钥字节派生 PeerID
func PeerIDFromPublicKey(pub []byte) (PeerID, error) {
	if len(pub) == 0 {
		return EmptyPeerID, ErrInvalidPeerID
	}
	mh, err := multihash.Sum(pub, multihash.SHA2_256, -1)
	if err != nil {
		return EmptyPeerID, err
	}
	return PeerID(base58.Encode(mh)), nil
}

// ParsePeerID 解析 Base58 字符串为 PeerID
func ParsePeerID(s string) (PeerID, error) {
	id := PeerID(s)
	if err := id.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return id, nil
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 协议标识符
//
// 格式: /nest/{name}/{version}，例如 /nest/blob/1.0.0
type ProtocolID string

// String 返回协议 ID 字符串
func (p ProtocolID) String() string {
	return string(p)
}

// IsEmpty 检查是否为空
func (p ProtocolID) IsEmpty() bool {
	return p == ""
}

// ============================================================================
//                              CorrelationID - 请求关联标识
// ============================================================================

// CorrelationID 挂起请求的关联标识
//
// 由执行器在请求进入挂起表时单调递增分配，永不复用。
type CorrelationID uint64

// String 返回十进制表示
func (c CorrelationID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ============================================================================
//                              BlobID - 传输标识
// ============================================================================

// BlobID 文件块传输标识
//
// 由发送方生成，在发送方节点内单调递增，
// 因而在发送方与任意对端之间的挂起/进行中传输中唯一。
type BlobID uint64

// String 返回十进制表示
func (b BlobID) String() string {
	return strconv.FormatUint(uint64(b), 10)
}

// TransferKey 接收方用于定位传输的复合键
//
// BlobID 只在发送方内唯一，接收方必须结合对端 PeerID 使用。
type TransferKey struct {
	Peer PeerID
	ID   BlobID
}

// String 返回 "peer/id" 形式
func (k TransferKey) String() string {
	return k.Peer.ShortString() + "/" + k.ID.String()
}
