package executor

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params 执行器依赖参数
type Params struct {
	fx.In

	Engine   interfaces.Engine
	Bus      *eventbus.Bus
	Config   *config.Config               `optional:"true"`
	Metrics  *metrics.Metrics             `optional:"true"`
	Clock    clock.Clock                  `optional:"true"`
	Handlers []interfaces.ProtocolHandler `group:"protocol_handlers"`
}

// Result 执行器输出
type Result struct {
	fx.Out

	Executor *Executor
	Handle   *Handle
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("executor",
		fx.Provide(ProvideExecutor),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideExecutor 创建执行器并注册值组中的所有协议处理器
func ProvideExecutor(p Params) (Result, error) {
	cfg := config.DefaultExecutorConfig()
	namespace := config.DefaultMetricsConfig().Namespace
	if p.Config != nil {
		cfg = p.Config.Executor
		namespace = p.Config.Metrics.Namespace
	}

	opts := []Option{WithBus(p.Bus), WithMetrics(p.Metrics)}
	if p.Clock != nil {
		opts = append(opts, WithClock(p.Clock))
	}

	e, err := New(p.Engine, cfg, opts...)
	if err != nil {
		return Result{}, err
	}
	for _, h := range p.Handlers {
		if err := e.Register(h); err != nil {
			return Result{}, err
		}
	}
	p.Metrics.RegisterBus(namespace, p.Bus)
	return Result{Executor: e, Handle: e.Handle()}, nil
}

func registerLifecycle(lc fx.Lifecycle, e *Executor) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return e.Start()
		},
		OnStop: func(ctx context.Context) error {
			return e.Stop(ctx)
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
	Name = "executor"
	// Description 模块描述
	Description = "Swarm 执行器：单一控制循环、命令队列、挂起请求表"
)
