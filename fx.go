package nest

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/engine"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/internal/core/executor"
	"github.com/dep2p/go-nest/internal/core/identity"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/internal/core/storage"
	"github.com/dep2p/go-nest/internal/protocol/advertise"
	"github.com/dep2p/go-nest/internal/protocol/blob"
	"github.com/dep2p/go-nest/internal/protocol/messaging"
	"github.com/dep2p/go-nest/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 基础: Config → Identity → EventBus → Metrics → Storage
//  2. 网络: Engine（TCP 或外部提供的引擎）
//  3. 协议: Blob → Messaging → Advertise，均进入 protocol_handlers 值组
//  4. 执行器: 注册值组中的所有协议处理器
//  5. 用户扩展与 Node 组件注入
func buildFxApp(o *options, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(o.config),

		identity.Module(),
		eventbus.Module(),
		metrics.Module(),
		storage.Module(),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 外部注入的组件（可选）
	// ════════════════════════════════════════════════════════════════════════
	if o.identity != nil {
		id := o.identity
		modules = append(modules, fx.Provide(fx.Annotated{
			Name:   "preset_identity",
			Target: func() *identity.Identity { return id },
		}))
	}
	if o.engine != nil {
		eng := o.engine
		modules = append(modules, fx.Provide(fx.Annotated{
			Name:   "preset_engine",
			Target: func() interfaces.Engine { return eng },
		}))
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 网络引擎、协议与执行器
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		engine.Module(),
		blob.Module(),
		messaging.Module(),
		advertise.Module(),
		executor.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	return fx.New(modules...), nil
}

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Config    *config.Config
	Executor  *executor.Executor
	Blob      *blob.Client
	Messaging *messaging.Client
	Advertise *advertise.Client
	Blobs     *storage.BlobStore

	Metrics *metrics.Metrics `optional:"true"`
}

// injectNodeComponents 创建 Node 组件注入函数
func injectNodeComponents(node *Node) interface{} {
	return func(p nodeInjectParams) {
		node.cfg = p.Config
		node.executor = p.Executor
		node.blob = p.Blob
		node.messaging = p.Messaging
		node.advertise = p.Advertise
		node.blobs = p.Blobs
		node.metrics = p.Metrics
	}
}
