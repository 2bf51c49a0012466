package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
)

// Params 依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Module 返回 Fx 模块
//
// 指标未启用时提供 nil，所有记录方法对 nil 安全。
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
	)
}

// ProvideMetrics 按配置提供指标集合
func ProvideMetrics(p Params) *Metrics {
	cfg := config.DefaultMetricsConfig()
	if p.Config != nil {
		cfg = p.Config.Metrics
	}
	if !cfg.Enabled {
		return nil
	}
	m := New(cfg.Namespace)
	m.RegisterRuntime()
	return m
}
