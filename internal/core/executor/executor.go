package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/internal/core/metrics"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("core/executor")

// Executor Swarm 执行器
type Executor struct {
	cfg     config.ExecutorConfig
	engine  interfaces.Engine
	bus     *eventbus.Bus
	clock   clock.Clock
	metrics *metrics.Metrics

	cmds  chan *types.Request
	inbox chan any

	// 以下字段只在循环 goroutine 内访问
	handlers  map[types.ProtocolID]*handlerSlot
	order     []*handlerSlot
	pending   *pendingTable
	outbound  map[streamKey]*outStream
	inbound   map[*inStream]struct{}
	connected map[types.PeerID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started  atomic.Bool
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// handlerSlot 已注册的协议处理器
type handlerSlot struct {
	proto    types.ProtocolID
	h        interfaces.ProtocolHandler
	hctx     *handlerCtx
	maxFrame int
}

// frameLimiter 处理器可选实现，声明入站帧长度上限
type frameLimiter interface {
	MaxFrameSize() int
}

// entityFailer 处理器可选实现，回调失败后终结受影响的实体
//
// input 为出错的入站帧（[]byte）或内部消息；返回实体标识，无法识别时返回空串。
type entityFailer interface {
	FailEntity(peer types.PeerID, input any, err error) string
}

// New 创建执行器
func New(engine interfaces.Engine, cfg config.ExecutorConfig, opts ...Option) (*Executor, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine is nil", types.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		cfg:       cfg,
		engine:    engine,
		clock:     clock.New(),
		cmds:      make(chan *types.Request, cfg.CommandQueueSize),
		inbox:     make(chan any, cfg.CommandQueueSize),
		handlers:  make(map[types.ProtocolID]*handlerSlot),
		pending:   newPendingTable(),
		outbound:  make(map[streamKey]*outStream),
		inbound:   make(map[*inStream]struct{}),
		connected: make(map[types.PeerID]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = eventbus.NewBus(cfg.EventBacklog)
	}
	return e, nil
}

// Register 注册协议处理器，必须在 Start 之前调用
func (e *Executor) Register(h interfaces.ProtocolHandler) error {
	if e.started.Load() {
		return ErrAlreadyStarted
	}
	if h == nil {
		return fmt.Errorf("%w: handler is nil", types.ErrInvalidArgument)
	}
	proto := h.Protocol()
	if proto.IsEmpty() {
		return types.ErrEmptyProtocolID
	}
	if _, exists := e.handlers[proto]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProtocol, proto)
	}

	slot := &handlerSlot{proto: proto, h: h}
	slot.hctx = &handlerCtx{e: e, slot: slot}
	if fl, ok := h.(frameLimiter); ok {
		slot.maxFrame = fl.MaxFrameSize()
	}
	e.handlers[proto] = slot
	e.order = append(e.order, slot)
	return nil
}

// Start 启动控制循环
func (e *Executor) Start() error {
	select {
	case <-e.stopping:
		return types.ErrExecutorShutDown
	default:
	}
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	protos := make([]types.ProtocolID, 0, len(e.order))
	for _, slot := range e.order {
		protos = append(protos, slot.proto)
	}
	e.engine.SetProtocols(protos)

	for _, slot := range e.order {
		s := slot
		e.guard(s, "", nil, func() error {
			s.h.Attach(s.hctx)
			return nil
		})
	}

	go e.run()
	logger.Info("执行器已启动", "peer", e.engine.LocalPeer().ShortString(), "protocols", len(protos))
	return nil
}

// Stop 停止控制循环并等待其退出
//
// 所有挂起请求与排队命令以 ErrExecutorShutDown 应答，
// 处理器被关闭，网络引擎被关闭。可重复调用。
func (e *Executor) Stop(ctx context.Context) error {
	if !e.started.Load() {
		e.stopOnce.Do(func() {
			close(e.stopping)
			e.cancel()
			e.bus.Close()
			close(e.done)
		})
		return nil
	}

	e.stopOnce.Do(func() {
		close(e.stopping)
	})

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 返回循环退出后关闭的通道
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// LocalPeer 返回本地节点 ID
func (e *Executor) LocalPeer() types.PeerID {
	return e.engine.LocalPeer()
}

// Bus 返回事件总线
func (e *Executor) Bus() *eventbus.Bus {
	return e.bus
}

// Subscribe 订阅事件总线
func (e *Executor) Subscribe(opts ...eventbus.SubscriptionOpt) *eventbus.Subscription {
	return e.bus.Subscribe(opts...)
}

// Handle 返回客户端句柄
func (e *Executor) Handle() *Handle {
	return &Handle{e: e}
}

// ============================================================================
//                              命令提交
// ============================================================================

// Submit 提交命令并等待关联的应答
func (e *Executor) Submit(ctx context.Context, cmd types.Command) (any, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: command is nil", types.ErrInvalidArgument)
	}

	req := types.NewRequest(ctx, cmd)
	if err := e.enqueue(ctx, req); err != nil {
		return nil, err
	}

	select {
	case res := <-req.ReplyChan():
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		// 循环退出前可能已经投递了应答
		select {
		case res := <-req.ReplyChan():
			return res.Value, res.Err
		default:
			return nil, types.ErrExecutorShutDown
		}
	}
}

// Post 提交无需应答的命令
func (e *Executor) Post(cmd types.Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: command is nil", types.ErrInvalidArgument)
	}
	return e.enqueue(context.Background(), types.NewNotification(cmd))
}

func (e *Executor) enqueue(ctx context.Context, req *types.Request) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-e.stopping:
		return types.ErrExecutorShutDown
	default:
	}

	select {
	case e.cmds <- req:
		return nil
	case <-e.stopping:
		return types.ErrExecutorShutDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post 从 goroutine 向循环投递内部消息
func (e *Executor) post(msg any) bool {
	select {
	case e.inbox <- msg:
		return true
	case <-e.stopping:
		return false
	}
}

// publish 发布事件（仅循环内调用）
func (e *Executor) publish(ev types.Event) {
	e.bus.Publish(ev)
	e.metrics.EventPublished(ev.Type())
}

func (e *Executor) connectedPeers() []types.PeerID {
	peers := make([]types.PeerID, 0, len(e.connected))
	for p := range e.connected {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}
