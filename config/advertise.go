package config

import (
	"errors"
	"time"
)

// AdvertiseConfig 节点广告协议配置
type AdvertiseConfig struct {
	// Provider 启动时是否作为广告提供者
	Provider bool `json:"provider" yaml:"provider"`

	// QueryTimeout 远程查询与设置请求的期限
	QueryTimeout Duration `json:"query_timeout" yaml:"query_timeout"`

	// MaxAdvertised 提供者保存的广告节点上限
	MaxAdvertised int `json:"max_advertised" yaml:"max_advertised"`
}

// DefaultAdvertiseConfig 返回默认广告配置
func DefaultAdvertiseConfig() AdvertiseConfig {
	return AdvertiseConfig{
		Provider:      false,
		QueryTimeout:  Duration(10 * time.Second),
		MaxAdvertised: 256,
	}
}

// Validate 验证广告配置
func (c AdvertiseConfig) Validate() error {
	if c.QueryTimeout <= 0 {
		return errors.New("advertise: query_timeout must be positive")
	}
	if c.MaxAdvertised <= 0 {
		return errors.New("advertise: max_advertised must be positive")
	}
	return nil
}
