package advertise

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/pkg/interfaces"
)

// Params 节点广告协议依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Result 节点广告协议输出
type Result struct {
	fx.Out

	Handler  *Handler
	Protocol interfaces.ProtocolHandler `group:"protocol_handlers"`
}

// Module 返回节点广告协议 Fx 模块
func Module() fx.Option {
	return fx.Module("advertise",
		fx.Provide(ProvideHandler),
		fx.Provide(NewClient),
	)
}

// ProvideHandler 按配置创建处理器
func ProvideHandler(p Params) (Result, error) {
	cfg := config.DefaultAdvertiseConfig()
	if p.Config != nil {
		cfg = p.Config.Advertise
	}
	h, err := New(cfg)
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
	Name = "advertise"
	// Description 模块描述
	Description = "节点广告协议：提供者列表、远程查询与登记"
)
