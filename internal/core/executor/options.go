package executor

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/internal/core/metrics"
)

// Option 执行器选项函数
type Option func(*Executor)

// WithClock 设置时钟（测试中使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithBus 使用外部提供的事件总线
func WithBus(bus *eventbus.Bus) Option {
	return func(e *Executor) {
		if bus != nil {
			e.bus = bus
		}
	}
}

// WithMetrics 设置指标集合
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}
