package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`

	// Identity 直接注入的身份（WithIdentity 场景），优先于配置
	Identity *Identity `name:"preset_identity" optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}

// ProvideIdentity 提供节点身份
func ProvideIdentity(in ModuleInput) (*Identity, error) {
	if in.Identity != nil {
		return in.Identity, nil
	}
	cfg := config.DefaultIdentityConfig()
	if in.Config != nil {
		cfg = in.Config.Identity
	}
	return LoadOrGenerate(cfg.KeyFile, cfg.AutoGenerate)
}
