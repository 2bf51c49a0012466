package nest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/internal/core/executor"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/internal/core/storage"
	"github.com/dep2p/go-nest/internal/protocol/advertise"
	"github.com/dep2p/go-nest/internal/protocol/blob"
	"github.com/dep2p/go-nest/internal/protocol/messaging"
	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("nest")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止，不可重新启动
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Fx App 停止超时
	stopTimeout = 15 * time.Second
)

// Node go-nest 节点
//
// Node 是一个门面：它持有 Fx 应用，向用户暴露执行器句柄、
// 事件订阅与各协议的类型化客户端。
type Node struct {
	mu    sync.Mutex
	state NodeState
	app   *fx.App

	cfg       *config.Config
	executor  *executor.Executor
	blob      *blob.Client
	messaging *messaging.Client
	advertise *advertise.Client
	blobs     *storage.BlobStore
	metrics   *metrics.Metrics
}

// New 按选项组装节点，不启动网络
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	node := &Node{}
	app, err := buildFxApp(o, node)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	node.app = app
	return node, nil
}

// Start 启动执行器，监听配置的地址并拨号已知节点
//
// 监听失败时节点被关闭并返回错误；已知节点拨号失败只记录日志。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrNodeClosed
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := n.app.Start(startCtx); err != nil {
		logger.Error("节点启动失败", "error", err)
		n.state = StateStopped
		return fmt.Errorf("start failed: %w", err)
	}
	n.state = StateRunning
	logger.Info("节点已启动", "peer", n.ID().ShortString())

	h := n.executor.Handle()
	for _, addr := range n.cfg.Transport.ListenAddrs {
		bound, err := h.Listen(ctx, addr)
		if err != nil {
			logger.Error("监听地址失败", "addr", addr, "error", err)
			return multierr.Append(fmt.Errorf("listen %s: %w", addr, err), n.stopLocked())
		}
		logger.Info("监听地址成功", "addr", bound)
	}

	for _, addr := range n.cfg.KnownPeers {
		peer, err := h.Dial(ctx, addr)
		if err != nil {
			logger.Warn("连接已知节点失败", "addr", addr, "error", err)
			continue
		}
		logger.Info("已连接已知节点", "addr", addr, "peer", peer.ShortString())
	}
	return nil
}

// Close 停止节点，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateStopped {
		return nil
	}
	if n.state == StateIdle {
		n.state = StateStopped
		return nil
	}
	return n.stopLocked()
}

func (n *Node) stopLocked() error {
	n.state = StateStopped
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := n.app.Stop(ctx); err != nil {
		logger.Warn("节点停止时出错", "error", err)
		return err
	}
	logger.Info("节点已停止")
	return nil
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ════════════════════════════════════════════════════════════════════════════
//                              访问器
// ════════════════════════════════════════════════════════════════════════════

// ID 本地节点 ID
func (n *Node) ID() types.PeerID {
	return n.executor.LocalPeer()
}

// Config 节点配置（只读）
func (n *Node) Config() config.Config {
	return *n.cfg
}

// Handle 执行器句柄，可提交任意命令
func (n *Node) Handle() *executor.Handle {
	return n.executor.Handle()
}

// Subscribe 订阅节点事件
func (n *Node) Subscribe(opts ...eventbus.SubscriptionOpt) *eventbus.Subscription {
	return n.executor.Subscribe(opts...)
}

// Blob 文件块传输客户端
func (n *Node) Blob() *blob.Client {
	return n.blob
}

// Messaging 直发消息客户端
func (n *Node) Messaging() *messaging.Client {
	return n.messaging
}

// Advertise 节点广告客户端
func (n *Node) Advertise() *advertise.Client {
	return n.advertise
}

// BlobStore 接收文件块的存储
func (n *Node) BlobStore() *storage.BlobStore {
	return n.blobs
}

// Metrics 指标集合，未启用时为 nil
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// ════════════════════════════════════════════════════════════════════════════
//                              Swarm 操作
// ════════════════════════════════════════════════════════════════════════════

// Listen 在地址上监听，返回实际绑定的地址
func (n *Node) Listen(ctx context.Context, addr string) (string, error) {
	if err := n.checkRunning(); err != nil {
		return "", err
	}
	return n.executor.Handle().Listen(ctx, addr)
}

// Dial 拨号并返回对端节点 ID
func (n *Node) Dial(ctx context.Context, addr string) (types.PeerID, error) {
	if err := n.checkRunning(); err != nil {
		return "", err
	}
	return n.executor.Handle().Dial(ctx, addr)
}

// Disconnect 断开对端
func (n *Node) Disconnect(ctx context.Context, peer types.PeerID) error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	return n.executor.Handle().Disconnect(ctx, peer)
}

// IsConnected 检查是否已连接
func (n *Node) IsConnected(ctx context.Context, peer types.PeerID) (bool, error) {
	if err := n.checkRunning(); err != nil {
		return false, err
	}
	return n.executor.Handle().IsConnected(ctx, peer)
}

// ListConnected 列出已连接对端
func (n *Node) ListConnected(ctx context.Context) ([]types.PeerID, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.executor.Handle().ListConnected(ctx)
}

// ListListeners 列出监听地址
func (n *Node) ListListeners(ctx context.Context) ([]string, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.executor.Handle().ListListeners(ctx)
}

func (n *Node) checkRunning() error {
	switch n.State() {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return ErrNodeClosed
	}
	return nil
}
