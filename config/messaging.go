package config

import (
	"errors"
	"time"
)

// MessagingConfig 直发消息协议配置
type MessagingConfig struct {
	// SendTimeout 等待对端确认的期限
	SendTimeout Duration `json:"send_timeout" yaml:"send_timeout"`

	// MaxMessageSize 单条消息负载上限
	MaxMessageSize int `json:"max_message_size" yaml:"max_message_size"`

	// DedupCacheSize 最近消息 ID 去重缓存容量
	DedupCacheSize int `json:"dedup_cache_size" yaml:"dedup_cache_size"`
}

// DefaultMessagingConfig 返回默认消息配置
func DefaultMessagingConfig() MessagingConfig {
	return MessagingConfig{
		SendTimeout:    Duration(10 * time.Second),
		MaxMessageSize: 512 * 1024,
		DedupCacheSize: 1024,
	}
}

// Validate 验证消息配置
func (c MessagingConfig) Validate() error {
	if c.SendTimeout <= 0 {
		return errors.New("messaging: send_timeout must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("messaging: max_message_size must be positive")
	}
	if c.DedupCacheSize <= 0 {
		return errors.New("messaging: dedup_cache_size must be positive")
	}
	return nil
}
