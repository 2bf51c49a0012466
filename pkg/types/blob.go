package types

import (
	"time"
)

// ============================================================================
//                              传输方向与状态
// ============================================================================

// TransferDirection 传输方向
type TransferDirection int

const (
	// DirSend 本地为发送方
	DirSend TransferDirection = iota
	// DirRecv 本地为接收方
	DirRecv
)

// String 返回方向的字符串表示
func (d TransferDirection) String() string {
	if d == DirRecv {
		return "recv"
	}
	return "send"
}

// TransferState 传输状态
type TransferState int

const (
	// StatePendingSend 已发出邀约，等待对端决定
	StatePendingSend TransferState = iota
	// StateOngoingSend 对端已接受，正在发送数据块
	StateOngoingSend
	// StatePendingRecv 收到邀约，等待本地决定
	StatePendingRecv
	// StateOngoingRecv 本地已接受，正在接收数据块
	StateOngoingRecv
)

// String 返回状态的字符串表示
func (s TransferState) String() string {
	switch s {
	case StatePendingSend:
		return "pending_send"
	case StateOngoingSend:
		return "ongoing_send"
	case StatePendingRecv:
		return "pending_recv"
	case StateOngoingRecv:
		return "ongoing_recv"
	default:
		return "unknown"
	}
}

// Compression 数据块压缩算法
type Compression string

const (
	// CompressionNone 不压缩
	CompressionNone Compression = ""
	// CompressionZstd zstd 压缩
	CompressionZstd Compression = "zstd"
)

// RejectReason 拒绝原因
type RejectReason int

const (
	// RejectDeclined 接收方主动拒绝
	RejectDeclined RejectReason = iota + 1
	// RejectCapacity 接收方挂起容量已满
	RejectCapacity
	// RejectTimeout 接收方在挂起期限内未作出决定
	RejectTimeout
	// RejectViolation 邀约本身不合法
	RejectViolation
)

// String 返回拒绝原因的字符串表示
func (r RejectReason) String() string {
	switch r {
	case RejectDeclined:
		return "declined"
	case RejectCapacity:
		return "capacity"
	case RejectTimeout:
		return "timeout"
	case RejectViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// FailureKind 传输失败类别
type FailureKind int

const (
	// FailTimeout 进行中阶段超时
	FailTimeout FailureKind = iota + 1
	// FailTransportLost 连接断开
	FailTransportLost
	// FailProtocolViolation 对端违反协议
	FailProtocolViolation
	// FailIntegrity 长度或摘要校验失败
	FailIntegrity
	// FailIO 本地数据源或接收端读写失败
	FailIO
	// FailRemoteAbort 对端中止
	FailRemoteAbort
	// FailInternal 本地处理器回调失败
	FailInternal
)

// String 返回失败类别的字符串表示
func (k FailureKind) String() string {
	switch k {
	case FailTimeout:
		return "timeout"
	case FailTransportLost:
		return "transport_lost"
	case FailProtocolViolation:
		return "protocol_violation"
	case FailIntegrity:
		return "integrity"
	case FailIO:
		return "io"
	case FailRemoteAbort:
		return "remote_abort"
	case FailInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              描述与快照
// ============================================================================

// BlobDescriptor 邀约中携带的文件块元数据
type BlobDescriptor struct {
	// Size 声明的总字节数
	Size uint64
	// Name 文件名（仅作展示，不含路径）
	Name string
	// Digest 可选的 blake3 multihash 摘要
	Digest []byte
	// Compression 数据块压缩算法
	Compression Compression
}

// BlobInfo 传输记录的只读快照
type BlobInfo struct {
	Peer        PeerID
	ID          BlobID
	Direction   TransferDirection
	State       TransferState
	Descriptor  BlobDescriptor
	Transferred uint64
	CreatedAt   time.Time
	Deadline    time.Time
}

// ============================================================================
//                              文件块事件
// ============================================================================

// EvtBlobRequested 收到对端的传输邀约（接收方，处于挂起状态）
type EvtBlobRequested struct {
	BaseEvent
	Peer       PeerID
	ID         BlobID
	Descriptor BlobDescriptor
}

// EvtBlobAccepted 传输被接受（双方各一次）
type EvtBlobAccepted struct {
	BaseEvent
	Peer      PeerID
	ID        BlobID
	Direction TransferDirection
}

// EvtBlobProgress 传输进度
type EvtBlobProgress struct {
	BaseEvent
	Peer        PeerID
	ID          BlobID
	Direction   TransferDirection
	Transferred uint64
	Total       uint64
}

// EvtBlobCompleted 传输完成
type EvtBlobCompleted struct {
	BaseEvent
	Peer      PeerID
	ID        BlobID
	Direction TransferDirection
	Bytes     uint64
	Elapsed   time.Duration
}

// EvtBlobRejected 传输被拒绝
type EvtBlobRejected struct {
	BaseEvent
	Peer      PeerID
	ID        BlobID
	Direction TransferDirection
	Reason    RejectReason
}

// EvtBlobTimedOut 挂起阶段超时
type EvtBlobTimedOut struct {
	BaseEvent
	Peer      PeerID
	ID        BlobID
	Direction TransferDirection
}

// EvtBlobFailed 传输失败
type EvtBlobFailed struct {
	BaseEvent
	Peer      PeerID
	ID        BlobID
	Direction TransferDirection
	Kind      FailureKind
	Err       error
}

// EvtBlobCancelled 传输被取消
//
// Remote 为 true 表示由对端发起取消。
type EvtBlobCancelled struct {
	BaseEvent
	Peer      PeerID
	ID        BlobID
	Direction TransferDirection
	Remote    bool
}
