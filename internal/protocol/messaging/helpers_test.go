package messaging

import (
	"context"
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

func newMessagingNode(t *testing.T, mn *memnet.Network, opts ...executor.Option) *testNode {
	t.Helper()
	h, err := New(config.DefaultMessagingConfig())
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

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// silentHandler 占用消息协议但从不确认的对端
type silentHandler struct {
	received chan *wireMsg
}

func newSilentHandler() *silentHandler {
	return &silentHandler{received: make(chan *wireMsg, 64)}
}

func (h *silentHandler) Protocol() types.ProtocolID           { return protocolids.Messaging }
func (h *silentHandler) Attach(interfaces.HandlerContext)     {}
func (h *silentHandler) HandleInternal(any)                   {}
func (h *silentHandler) PeerConnected(types.PeerID)           {}
func (h *silentHandler) PeerDisconnected(types.PeerID, error) {}
func (h *silentHandler) Sweep(time.Time)                      {}
func (h *silentHandler) Close()                               {}

func (h *silentHandler) HandleCommand(req *types.Request) {
	req.Reply(nil, types.ErrUnknownCommand)
}

func (h *silentHandler) HandleFrame(_ types.PeerID, body []byte) error {
	m, err := decodeWire(body)
	if err != nil {
		return err
	}
	select {
	case h.received <- m:
	default:
	}
	return nil
}

func (h *silentHandler) wait(t *testing.T) *wireMsg {
	t.Helper()
	select {
	case m := <-h.received:
		return m
	case <-time.After(waitTimeout):
		t.Fatal("等待消息超时")
		return nil
	}
}
