package blob

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/pkg/interfaces"
)

// Params 文件块协议依赖参数
type Params struct {
	fx.In

	Config  *config.Config   `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Result 文件块协议输出
//
// 处理器同时以具体类型和 protocol_handlers 值组成员提供，
// 执行器从值组中注册所有协议。
type Result struct {
	fx.Out

	Handler  *Handler
	Protocol interfaces.ProtocolHandler `group:"protocol_handlers"`
}

// Module 返回文件块协议 Fx 模块
func Module() fx.Option {
	return fx.Module("blob",
		fx.Provide(ProvideHandler),
		fx.Provide(NewClient),
	)
}

// ProvideHandler 按配置创建处理器
func ProvideHandler(p Params) (Result, error) {
	cfg := config.DefaultBlobConfig()
	if p.Config != nil {
		cfg = p.Config.Blob
	}
	h, err := New(cfg, WithMetrics(p.Metrics))
	if err != nil {
		return Result{}, err
	}
	return Result{Handler: h, Protocol: h}, nil
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "blob"
	// Description 模块描述
	Description = "文件块传输协议：分块、流控、独立的收发状态机"
)
