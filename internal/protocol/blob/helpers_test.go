package blob

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/engine/memnet"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/internal/core/executor"
	"github.com/dep2p/go-nest/internal/testutil"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

const waitTimeout = 10 * time.Second

// testNode 一个带文件块协议的执行器
type testNode struct {
	e   *executor.Executor
	c   *Client
	sub *eventbus.Subscription
}

func (n *testNode) id() types.PeerID {
	return n.e.LocalPeer()
}

func newNode(t *testing.T, mn *memnet.Network, h interfaces.ProtocolHandler, opts ...executor.Option) *testNode {
	t.Helper()

	eng, err := mn.NewPeer()
	require.NoError(t, err)

	e, err := executor.New(eng, config.DefaultExecutorConfig(), opts...)
	require.NoError(t, err)
	require.NoError(t, e.Register(h))

	n := &testNode{e: e, c: NewClient(e.Handle()), sub: e.Subscribe()}
	require.NoError(t, e.Start())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return n
}

func newBlobNode(t *testing.T, mn *memnet.Network, cfg config.BlobConfig, opts ...executor.Option) *testNode {
	t.Helper()
	h, err := New(cfg)
	require.NoError(t, err)
	return newNode(t, mn, h, opts...)
}

func connect(t *testing.T, a, b *testNode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr, err := b.e.Handle().Listen(ctx, "")
	require.NoError(t, err)
	_, err = a.e.Handle().Dial(ctx, addr)
	require.NoError(t, err)

	testutil.Eventually(t, 5*time.Second, func() bool {
		ok, _ := b.e.Handle().IsConnected(ctx, a.id())
		return ok
	}, "被拨号方应该看到连接")
}

func waitRequested(t *testing.T, n *testNode, id types.BlobID) *types.EvtBlobRequested {
	t.Helper()
	return testutil.WaitEvent[*types.EvtBlobRequested](t, n.sub, waitTimeout, func(ev *types.EvtBlobRequested) bool {
		return ev.ID == id
	})
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// safeBuffer 可并发读取的接收端
type safeBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *safeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func (b *safeBuffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// ============================================================================
//                              原始帧对端
// ============================================================================

// cmdRaw 原样发送一帧
type cmdRaw struct {
	Peer types.PeerID
	Body []byte
}

func (*cmdRaw) Protocol() types.ProtocolID { return protocolids.Blob }

// rawHandler 占用文件块协议、只收发原始帧的对端，用于构造违规消息
type rawHandler struct {
	hctx     interfaces.HandlerContext
	received chan *message
}

func newRawHandler() *rawHandler {
	return &rawHandler{received: make(chan *message, 256)}
}

func (h *rawHandler) Protocol() types.ProtocolID            { return protocolids.Blob }
func (h *rawHandler) Attach(hctx interfaces.HandlerContext) { h.hctx = hctx }
func (h *rawHandler) HandleInternal(any)                    {}
func (h *rawHandler) PeerConnected(types.PeerID)            {}
func (h *rawHandler) PeerDisconnected(types.PeerID, error)  {}
func (h *rawHandler) Sweep(time.Time)                       {}
func (h *rawHandler) Close()                                {}

func (h *rawHandler) HandleCommand(req *types.Request) {
	cmd, ok := req.Cmd.(*cmdRaw)
	if !ok {
		req.Reply(nil, types.ErrUnknownCommand)
		return
	}
	req.Reply(nil, h.hctx.SendFrame(cmd.Peer, cmd.Body))
}

func (h *rawHandler) HandleFrame(_ types.PeerID, body []byte) error {
	m, err := decodeMessage(body)
	if err != nil {
		return err
	}
	select {
	case h.received <- m:
	default:
	}
	return nil
}

// waitKind 等待收到指定类别的消息
func (h *rawHandler) waitKind(t *testing.T, kind msgKind, id types.BlobID) *message {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case m := <-h.received:
			if m.kind == kind && m.id == id {
				return m
			}
		case <-timeout:
			t.Fatalf("等待 %s(%d) 超时", kind, id)
			return nil
		}
	}
}

func sendRaw(t *testing.T, n *testNode, peer types.PeerID, m *message) {
	t.Helper()
	_, err := n.e.Handle().Submit(testCtx(t), &cmdRaw{Peer: peer, Body: m.encode()})
	require.NoError(t, err)
}

// ============================================================================
//                              脱离执行器的处理器上下文
// ============================================================================

// stubCtx 记录处理器的所有输出，SendFrame 固定返回 sendErr
type stubCtx struct {
	mu      sync.Mutex
	sendErr error
	frames  []*message
	events  []types.Event
	posts   []any
}

var _ interfaces.HandlerContext = (*stubCtx)(nil)

func (c *stubCtx) LocalPeer() types.PeerID { return "local" }
func (c *stubCtx) Now() time.Time          { return time.Now() }
func (c *stubCtx) Disconnect(types.PeerID) {}
func (c *stubCtx) IsConnected(types.PeerID) bool {
	return c.sendErr == nil
}
func (c *stubCtx) Park(*types.Request, time.Time) types.CorrelationID { return 0 }
func (c *stubCtx) Resolve(types.CorrelationID, any, error) bool      { return false }

func (c *stubCtx) Emit(ev types.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *stubCtx) SendFrame(_ types.PeerID, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, err := decodeMessage(body); err == nil {
		c.frames = append(c.frames, m)
	}
	return c.sendErr
}

func (c *stubCtx) Post(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, msg)
	return true
}

func (c *stubCtx) sent() []*message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*message(nil), c.frames...)
}

func (c *stubCtx) posted() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.posts...)
}

// failures 返回已发布的失败事件
func (c *stubCtx) failures() []*types.EvtBlobFailed {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*types.EvtBlobFailed
	for _, ev := range c.events {
		if f, ok := ev.(*types.EvtBlobFailed); ok {
			out = append(out, f)
		}
	}
	return out
}

// newStubHandler 创建挂在 stubCtx 上的处理器
func newStubHandler(t *testing.T, sendErr error) (*Handler, *stubCtx) {
	t.Helper()
	h, err := New(config.DefaultBlobConfig())
	require.NoError(t, err)
	hctx := &stubCtx{sendErr: sendErr}
	h.Attach(hctx)
	return h, hctx
}

// ongoingRecv 直接放入一条进行中的接收记录
func ongoingRecv(h *Handler, peer types.PeerID, id types.BlobID, size uint64) *recvRecord {
	r := &recvRecord{
		key:   types.TransferKey{Peer: peer, ID: id},
		desc:  types.BlobDescriptor{Size: size},
		state: types.StateOngoingRecv,
	}
	h.recvs[r.key] = r
	return r
}

// blockingSink Close 阻塞到 release 关闭为止
type blockingSink struct {
	closing chan struct{}
	release chan struct{}
	aborted atomic.Bool
	closed  atomic.Bool
}

func newBlockingSink() *blockingSink {
	return &blockingSink{closing: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSink) Write(p []byte) (int, error) { return len(p), nil }

func (s *blockingSink) Close() error {
	close(s.closing)
	<-s.release
	s.closed.Store(true)
	return nil
}

func (s *blockingSink) Abort() error {
	s.aborted.Store(true)
	return nil
}
