package engine

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/identity"
	"github.com/dep2p/go-nest/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params 引擎依赖参数
type Params struct {
	fx.In

	Identity *identity.Identity
	Config   *config.Config `optional:"true"`

	// Preset 外部提供的引擎（例如 memnet），优先于 TCP 引擎
	Preset interfaces.Engine `name:"preset_engine" optional:"true"`
}

// Module 返回 Fx 模块
//
// 引擎由执行器在停止时关闭，这里不注册生命周期钩子。
func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(ProvideEngine),
	)
}

// ProvideEngine 提供网络引擎
func ProvideEngine(p Params) (interfaces.Engine, error) {
	if p.Preset != nil {
		return p.Preset, nil
	}
	cfg := config.DefaultTransportConfig()
	if p.Config != nil {
		cfg = p.Config.Transport
	}
	return New(p.Identity, cfg)
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "engine"
	// Description 模块描述
	Description = "TCP + yamux + multistream-select 参考网络引擎"
)
