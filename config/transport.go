package config

import (
	"errors"
	"net"
	"time"
)

// TransportConfig 参考网络引擎配置
//
// 引擎使用 TCP 承载，连接建立后完成 Ed25519 握手，
// 再以 yamux 多路复用，每条流用 multistream-select 协商协议。
type TransportConfig struct {
	// ListenAddrs 监听地址（host:port）
	ListenAddrs []string `json:"listen_addrs" yaml:"listen_addrs"`

	// DialTimeout 拨号与握手超时
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// HandshakeTimeout 入站连接握手超时
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`

	// StreamOpenTimeout 打开协议流（含协商）超时
	StreamOpenTimeout Duration `json:"stream_open_timeout" yaml:"stream_open_timeout"`

	// KeepAliveInterval yamux 保活间隔
	KeepAliveInterval Duration `json:"keep_alive_interval" yaml:"keep_alive_interval"`

	// MaxStreamWindowSize yamux 单流接收窗口
	MaxStreamWindowSize uint32 `json:"max_stream_window_size" yaml:"max_stream_window_size"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs:         nil,
		DialTimeout:         Duration(10 * time.Second),
		HandshakeTimeout:    Duration(10 * time.Second),
		StreamOpenTimeout:   Duration(10 * time.Second),
		KeepAliveInterval:   Duration(30 * time.Second),
		MaxStreamWindowSize: 16 * 1024 * 1024,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	for _, addr := range c.ListenAddrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return errors.New("transport: invalid listen address " + addr)
		}
	}
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 || c.StreamOpenTimeout <= 0 {
		return errors.New("transport: timeouts must be positive")
	}
	if c.KeepAliveInterval <= 0 {
		return errors.New("transport: keep_alive_interval must be positive")
	}
	if c.MaxStreamWindowSize < 256*1024 {
		return errors.New("transport: max_stream_window_size must be at least 256KiB")
	}
	return nil
}
