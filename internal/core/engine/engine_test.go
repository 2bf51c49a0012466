package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/identity"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/frame"
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)

	e, err := New(id, config.DefaultTransportConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitEngineEvent(t *testing.T, ch <-chan interfaces.EngineEvent, kind interfaces.EngineEventKind) interfaces.EngineEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "事件通道被关闭")
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("等待引擎事件 %s 超时", kind)
		}
	}
}

// TestEventQueue_Order 测试事件队列保序且不阻塞
func TestEventQueue_Order(t *testing.T) {
	q := NewEventQueue()

	for i := 0; i < 100; i++ {
		q.Push(interfaces.EngineEvent{Kind: interfaces.EngineOpaque, Payload: i})
	}
	for i := 0; i < 100; i++ {
		ev := <-q.Events()
		assert.Equal(t, i, ev.Payload)
	}

	q.Close()
	_, ok := <-q.Events()
	assert.False(t, ok, "关闭后通道应关闭")

	q.Push(interfaces.EngineEvent{Kind: interfaces.EngineOpaque})
	q.Close()
}

// TestHandshake 测试握手互相得到对方 PeerID
func TestHandshake(t *testing.T) {
	idA, err := identity.Generate()
	require.NoError(t, err)
	idB, err := identity.Generate()
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	type result struct {
		peer types.PeerID
		err  error
	}
	server := make(chan result, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			server <- result{err: err}
			return
		}
		defer c.Close()
		p, err := handshake(c, idB)
		server <- result{peer: p, err: err}
	}()

	c, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	peer, err := handshake(c, idA)
	require.NoError(t, err)
	assert.Equal(t, idB.PeerID(), peer)

	res := <-server
	require.NoError(t, res.err)
	assert.Equal(t, idA.PeerID(), res.peer)
}

// TestHandshake_Self 测试拒绝与自身握手
func TestHandshake_Self(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = handshake(c, id)
	}()

	c, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_, err = handshake(c, id)
	assert.ErrorIs(t, err, ErrHandshake)
}

// TestEngine_DialAndStream 测试拨号、协议协商与帧传输
func TestEngine_DialAndStream(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	b.SetProtocols([]types.ProtocolID{protocolids.TestEcho})

	addr, err := b.Listen("127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, b.ListenAddrs())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer, err := a.Dial(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, b.LocalPeer(), peer)
	assert.True(t, a.IsConnected(peer))

	evA := waitEngineEvent(t, a.Events(), interfaces.EngineConnEstablished)
	assert.True(t, evA.Outbound)
	evB := waitEngineEvent(t, b.Events(), interfaces.EngineConnEstablished)
	assert.Equal(t, a.LocalPeer(), evB.Peer)
	assert.False(t, evB.Outbound)

	s, err := a.OpenStream(ctx, peer, protocolids.TestEcho)
	require.NoError(t, err)
	require.NoError(t, frame.Write(s, []byte("ping")))

	in := waitEngineEvent(t, b.Events(), interfaces.EngineInboundStream)
	require.NotNil(t, in.Stream)
	assert.Equal(t, protocolids.TestEcho, in.Stream.Protocol())
	assert.Equal(t, a.LocalPeer(), in.Stream.RemotePeer())

	body, err := frame.NewReader(in.Stream, 0).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), body)

	t.Log("✅ TCP 引擎流传输成功")
}

// TestEngine_UnsupportedProtocol 测试对端未注册的协议
func TestEngine_UnsupportedProtocol(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	addr, err := b.Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer, err := a.Dial(ctx, addr)
	require.NoError(t, err)

	_, err = a.OpenStream(ctx, peer, protocolids.TestEcho)
	assert.Error(t, err)
}

// TestEngine_Disconnect 测试断开后双方收到关闭事件
func TestEngine_Disconnect(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	addr, err := b.Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer, err := a.Dial(ctx, addr)
	require.NoError(t, err)
	waitEngineEvent(t, b.Events(), interfaces.EngineConnEstablished)

	require.NoError(t, a.Disconnect(peer))

	closedA := waitEngineEvent(t, a.Events(), interfaces.EngineConnClosed)
	assert.Equal(t, peer, closedA.Peer)
	assert.NoError(t, closedA.Err, "本端主动断开没有错误原因")

	closedB := waitEngineEvent(t, b.Events(), interfaces.EngineConnClosed)
	assert.Equal(t, a.LocalPeer(), closedB.Peer)
	assert.ErrorIs(t, closedB.Err, types.ErrTransportLost)

	assert.False(t, a.IsConnected(peer))
	assert.ErrorIs(t, a.Disconnect(peer), types.ErrNotConnected)
}

// TestEngine_Close 测试关闭后拒绝操作
func TestEngine_Close(t *testing.T) {
	a := newTestEngine(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.Listen("127.0.0.1:0")
	assert.ErrorIs(t, err, ErrEngineClosed)

	_, ok := <-a.Events()
	assert.False(t, ok)
}
