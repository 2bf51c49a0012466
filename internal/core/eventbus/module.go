package eventbus

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params 依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideBus),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideBus 按执行器配置提供 Bus 实例
func ProvideBus(p Params) *Bus {
	backlog := config.DefaultExecutorConfig().EventBacklog
	if p.Config != nil {
		backlog = p.Config.Executor.EventBacklog
	}
	return NewBus(backlog)
}

func registerLifecycle(lc fx.Lifecycle, bus *Bus) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			bus.Close()
			return nil
		},
	})
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "eventbus"
	// Description 模块描述
	Description = "广播事件总线，有界保留窗口与滞后通知"
)
