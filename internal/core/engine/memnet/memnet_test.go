package memnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/frame"
	"github.com/dep2p/go-nest/pkg/protocolids"
	"github.com/dep2p/go-nest/pkg/types"
)

func waitEvent(t *testing.T, e *Engine, kind interfaces.EngineEventKind) interfaces.EngineEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-e.Events():
			require.True(t, ok)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("等待事件 %s 超时", kind)
		}
	}
}

func newPair(t *testing.T) (*Network, *Engine, *Engine) {
	t.Helper()
	mn := NewNetwork()
	a, err := mn.NewPeer()
	require.NoError(t, err)
	b, err := mn.NewPeer()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return mn, a, b
}

// TestMemnet_DialAndStream 测试内存连接与流
func TestMemnet_DialAndStream(t *testing.T) {
	_, a, b := newPair(t)
	b.SetProtocols([]types.ProtocolID{protocolids.TestEcho})

	addr, err := b.Listen("")
	require.NoError(t, err)
	assert.Contains(t, addr, AddrPrefix)

	ctx := context.Background()
	peer, err := a.Dial(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, b.LocalPeer(), peer)

	again, err := a.Dial(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, peer, again, "重复拨号复用连接")

	waitEvent(t, a, interfaces.EngineConnEstablished)
	waitEvent(t, b, interfaces.EngineConnEstablished)

	s, err := a.OpenStream(ctx, peer, protocolids.TestEcho)
	require.NoError(t, err)

	in := waitEvent(t, b, interfaces.EngineInboundStream)
	go func() {
		_ = frame.Write(s, []byte("hi"))
	}()
	body, err := frame.NewReader(in.Stream, 0).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), body)
}

// TestMemnet_Errors 测试错误路径
func TestMemnet_Errors(t *testing.T) {
	_, a, b := newPair(t)
	ctx := context.Background()

	_, err := a.Dial(ctx, "mem://missing")
	assert.ErrorIs(t, err, ErrUnknownAddr)

	addr, err := a.Listen("")
	require.NoError(t, err)
	_, err = a.Dial(ctx, addr)
	assert.ErrorIs(t, err, ErrSelfDial)

	_, err = b.Listen(addr)
	assert.ErrorIs(t, err, ErrAddrInUse)

	_, err = b.OpenStream(ctx, a.LocalPeer(), protocolids.TestEcho)
	assert.ErrorIs(t, err, types.ErrNotConnected)

	_, err = b.Dial(ctx, addr)
	require.NoError(t, err)
	_, err = b.OpenStream(ctx, a.LocalPeer(), protocolids.TestEcho)
	assert.ErrorIs(t, err, ErrProtocolNotSupported)
}

// TestMemnet_Sever 测试模拟传输中断
func TestMemnet_Sever(t *testing.T) {
	mn, a, b := newPair(t)

	addr, err := b.Listen("")
	require.NoError(t, err)
	_, err = a.Dial(context.Background(), addr)
	require.NoError(t, err)

	mn.Sever(a.LocalPeer(), b.LocalPeer(), nil)

	ev := waitEvent(t, a, interfaces.EngineConnClosed)
	assert.ErrorIs(t, ev.Err, types.ErrTransportLost)
	ev = waitEvent(t, b, interfaces.EngineConnClosed)
	assert.ErrorIs(t, ev.Err, types.ErrTransportLost)

	assert.False(t, a.IsConnected(b.LocalPeer()))
	assert.Empty(t, b.Peers())
}
