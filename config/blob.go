package config

import (
	"errors"
	"fmt"
	"time"
)

// BlobConfig 文件块传输协议配置
//
// 四类超时相互独立：
//   - PendingSendTimeout: 发出邀约后等待对端决定（0 表示不限时）
//   - OngoingSendTimeout: 两次确认之间的最长间隔
//   - PendingRecvTimeout: 收到邀约后等待本地决定
//   - OngoingRecvTimeout: 两个数据块之间的最长空闲
type BlobConfig struct {
	// MaxPendingRecv 全局挂起接收记录上限，超出的邀约立即被拒绝
	MaxPendingRecv int `json:"max_pending_recv" yaml:"max_pending_recv"`

	PendingRecvTimeout Duration `json:"pending_recv_timeout" yaml:"pending_recv_timeout"`
	OngoingRecvTimeout Duration `json:"ongoing_recv_timeout" yaml:"ongoing_recv_timeout"`
	PendingSendTimeout Duration `json:"pending_send_timeout" yaml:"pending_send_timeout"`
	OngoingSendTimeout Duration `json:"ongoing_send_timeout" yaml:"ongoing_send_timeout"`

	// ChunkSize 单个数据块的最大字节数
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// ChunkWindow 每个传输允许的未确认数据块数
	ChunkWindow int `json:"chunk_window" yaml:"chunk_window"`

	// MaxBlobSize 接受的最大声明大小，0 表示不限
	MaxBlobSize uint64 `json:"max_blob_size" yaml:"max_blob_size"`

	// MaxViolations 同一对端累计协议违规达到该值后断开连接
	MaxViolations int `json:"max_violations" yaml:"max_violations"`

	// SendRateLimit 每个发送传输的速率上限（字节/秒），0 表示不限
	SendRateLimit int `json:"send_rate_limit" yaml:"send_rate_limit"`

	// Compression 发送时的数据块压缩算法（"" 或 "zstd"）
	Compression string `json:"compression" yaml:"compression"`

	// VerifyDigest 发送时计算 blake3 摘要，接收方完成前校验
	VerifyDigest bool `json:"verify_digest" yaml:"verify_digest"`
}

// DefaultBlobConfig 返回默认文件块传输配置
func DefaultBlobConfig() BlobConfig {
	return BlobConfig{
		MaxPendingRecv:     16,
		PendingRecvTimeout: Duration(60 * time.Second),
		OngoingRecvTimeout: Duration(30 * time.Second),
		PendingSendTimeout: 0,
		OngoingSendTimeout: Duration(30 * time.Second),
		ChunkSize:          64 * 1024,
		ChunkWindow:        4,
		MaxBlobSize:        0,
		MaxViolations:      3,
		SendRateLimit:      0,
		Compression:        "",
		VerifyDigest:       true,
	}
}

// Validate 验证文件块传输配置
func (c BlobConfig) Validate() error {
	if c.MaxPendingRecv < 0 {
		return errors.New("blob: max_pending_recv must not be negative")
	}
	if c.PendingRecvTimeout <= 0 || c.OngoingRecvTimeout <= 0 || c.OngoingSendTimeout <= 0 {
		return errors.New("blob: pending_recv, ongoing_recv and ongoing_send timeouts must be positive")
	}
	if c.PendingSendTimeout < 0 {
		return errors.New("blob: pending_send_timeout must not be negative")
	}
	if c.ChunkSize < 1024 || c.ChunkSize > 4*1024*1024 {
		return fmt.Errorf("blob: chunk_size %d out of range [1KiB, 4MiB]", c.ChunkSize)
	}
	if c.ChunkWindow <= 0 {
		return errors.New("blob: chunk_window must be positive")
	}
	if c.MaxViolations <= 0 {
		return errors.New("blob: max_violations must be positive")
	}
	if c.SendRateLimit < 0 {
		return errors.New("blob: send_rate_limit must not be negative")
	}
	if c.SendRateLimit > 0 && c.SendRateLimit < c.ChunkSize {
		return errors.New("blob: send_rate_limit must be at least chunk_size")
	}
	switch c.Compression {
	case "", "zstd":
	default:
		return fmt.Errorf("blob: unsupported compression %q", c.Compression)
	}
	return nil
}
