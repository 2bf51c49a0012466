package nest

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/identity"
	"github.com/dep2p/go-nest/pkg/interfaces"
)

// Option 节点配置选项
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	engine   interfaces.Engine
	identity *identity.Identity
	clock    clock.Clock

	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// WithConfig 使用完整配置，之后的选项在其基础上修改
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config", ErrNilOption)
		}
		c := *cfg
		o.config = &c
		return nil
	}
}

// WithConfigFile 从 JSON 或 YAML 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithListenAddrs 设置启动时监听的地址（host:port）
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.config.Transport.ListenAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithKnownPeers 设置启动后拨号的地址
func WithKnownPeers(addrs ...string) Option {
	return func(o *options) error {
		o.config.KnownPeers = append([]string(nil), addrs...)
		return nil
	}
}

// WithIdentityKeyFile 从文件加载私钥，文件不存在时生成并写入
func WithIdentityKeyFile(path string) Option {
	return func(o *options) error {
		o.config.Identity.KeyFile = path
		o.config.Identity.AutoGenerate = true
		return nil
	}
}

// WithIdentity 直接使用给定身份
func WithIdentity(id *identity.Identity) Option {
	return func(o *options) error {
		if id == nil {
			return fmt.Errorf("%w: identity", ErrNilOption)
		}
		o.identity = id
		return nil
	}
}

// WithEngine 替换网络引擎（例如 memnet）
//
// 节点关闭时引擎随执行器一起关闭。
func WithEngine(e interfaces.Engine) Option {
	return func(o *options) error {
		if e == nil {
			return fmt.Errorf("%w: engine", ErrNilOption)
		}
		o.engine = e
		return nil
	}
}

// WithClock 替换执行器时钟
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		if c == nil {
			return fmt.Errorf("%w: clock", ErrNilOption)
		}
		o.clock = c
		return nil
	}
}

// WithBlobConfig 设置文件块协议配置
func WithBlobConfig(cfg config.BlobConfig) Option {
	return func(o *options) error {
		o.config.Blob = cfg
		return nil
	}
}

// WithProvider 设置启动时是否作为广告提供者
func WithProvider(enabled bool) Option {
	return func(o *options) error {
		o.config.Advertise.Provider = enabled
		return nil
	}
}

// WithDataDir 将接收到的文件块持久化到目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.config.Storage.DataDir = dir
		o.config.Storage.InMemory = dir == ""
		return nil
	}
}

// WithMetrics 开启或关闭指标
func WithMetrics(enabled bool) Option {
	return func(o *options) error {
		o.config.Metrics.Enabled = enabled
		return nil
	}
}

// WithFxOptions 追加用户 Fx 选项，例如额外的协议处理器
//
//	nest.WithFxOptions(fx.Provide(fx.Annotate(
//	    newEchoHandler,
//	    fx.As(new(interfaces.ProtocolHandler)),
//	    fx.ResultTags(`group:"protocol_handlers"`),
//	)))
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
