// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，提供 DefaultXxxConfig 与 Validate
//   - 支持从 JSON / YAML 加载与保存
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Blob.MaxPendingRecv = 8
//
//	cfg, err := config.LoadFile("nest.yaml")
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 go-nest 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 身份和密钥
//   - Transport: 参考网络引擎（TCP + yamux）
//   - Executor: Swarm 执行器
//   - Blob: 文件块传输协议
//   - Messaging: 直发消息协议
//   - Advertise: 节点广告协议
//   - Storage: 接收文件块的存储
//   - Metrics: 指标
//   - Log: 日志
type Config struct {
	Identity  IdentityConfig  `json:"identity" yaml:"identity"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Executor  ExecutorConfig  `json:"executor" yaml:"executor"`
	Blob      BlobConfig      `json:"blob" yaml:"blob"`
	Messaging MessagingConfig `json:"messaging" yaml:"messaging"`
	Advertise AdvertiseConfig `json:"advertise" yaml:"advertise"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Log       LogConfig       `json:"log" yaml:"log"`

	// KnownPeers 启动后主动拨号的地址
	KnownPeers []string `json:"known_peers,omitempty" yaml:"known_peers,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Executor:  DefaultExecutorConfig(),
		Blob:      DefaultBlobConfig(),
		Messaging: DefaultMessagingConfig(),
		Advertise: DefaultAdvertiseConfig(),
		Storage:   DefaultStorageConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	validators := []interface{ Validate() error }{
		c.Identity,
		c.Transport,
		c.Executor,
		c.Blob,
		c.Messaging,
		c.Advertise,
		c.Storage,
		c.Metrics,
		c.Log,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
//                              加载与保存
// ============================================================================

// FromJSON 从 JSON 加载配置，未出现的字段保留默认值
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	return cfg, nil
}

// FromYAML 从 YAML 加载配置，未出现的字段保留默认值
func FromYAML(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return cfg, nil
}

// LoadFile 按扩展名从文件加载配置并验证
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = FromYAML(data)
	case ".json":
		cfg, err = FromJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ToYAML 序列化为 YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
