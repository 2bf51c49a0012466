package messaging

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/pkg/interfaces"
)

// Params 直发消息协议依赖参数
type Params struct {
	fx.In

	Config  *config.Config   `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Result 直发消息协议输出
type Result struct {
	fx.Out

	Handler  *Handler
	Protocol interfaces.ProtocolHandler `group:"protocol_handlers"`
}

// Module 返回直发消息协议 Fx 模块
func Module() fx.Option {
	return fx.Module("messaging",
		fx.Provide(ProvideHandler),
		fx.Provide(NewClient),
	)
}

// ProvideHandler 按配置创建处理器
func ProvideHandler(p Params) (Result, error) {
	cfg := config.DefaultMessagingConfig()
	if p.Config != nil {
		cfg = p.Config.Messaging
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
	Name = "messaging"
	// Description 模块描述
	Description = "点对点直发消息协议：确认往返、重复抑制"
)
