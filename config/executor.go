package config

import (
	"errors"
	"time"
)

// ExecutorConfig Swarm 执行器配置
type ExecutorConfig struct {
	// CommandQueueSize 命令队列容量
	CommandQueueSize int `json:"command_queue_size" yaml:"command_queue_size"`

	// EventBacklog 事件总线保留的事件数，慢订阅者落后超过该值会收到滞后通知
	EventBacklog int `json:"event_backlog" yaml:"event_backlog"`

	// FairnessLimit 单次循环迭代中每个来源最多处理的条目数
	FairnessLimit int `json:"fairness_limit" yaml:"fairness_limit"`

	// TickInterval 期限检查的最长间隔
	TickInterval Duration `json:"tick_interval" yaml:"tick_interval"`

	// DialTimeout Dial 命令在挂起表中的期限
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// DefaultExecutorConfig 返回默认执行器配置
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		CommandQueueSize: 256,
		EventBacklog:     1024,
		FairnessLimit:    64,
		TickInterval:     Duration(100 * time.Millisecond),
		DialTimeout:      Duration(15 * time.Second),
	}
}

// Validate 验证执行器配置
func (c ExecutorConfig) Validate() error {
	if c.CommandQueueSize <= 0 {
		return errors.New("executor: command_queue_size must be positive")
	}
	if c.EventBacklog <= 0 {
		return errors.New("executor: event_backlog must be positive")
	}
	if c.FairnessLimit <= 0 {
		return errors.New("executor: fairness_limit must be positive")
	}
	if c.TickInterval <= 0 {
		return errors.New("executor: tick_interval must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("executor: dial_timeout must be positive")
	}
	return nil
}
