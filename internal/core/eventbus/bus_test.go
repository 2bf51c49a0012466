package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nest/pkg/types"
)

type testEvent struct {
	types.BaseEvent
	N int
}

func newTestEvent(n int) *testEvent {
	return &testEvent{BaseEvent: types.NewBaseEvent("test"), N: n}
}

func nextN(t *testing.T, sub *Subscription) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	return ev.(*testEvent).N
}

// ============================================================================
// 基础功能测试
// ============================================================================

// TestBus_LazySubscription 测试订阅只接收之后的事件
func TestBus_LazySubscription(t *testing.T) {
	bus := NewBus(8)
	bus.Publish(newTestEvent(0))

	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(newTestEvent(1))
	bus.Publish(newTestEvent(2))

	assert.Equal(t, 1, nextN(t, sub))
	assert.Equal(t, 2, nextN(t, sub))

	_, ok, err := sub.TryNext()
	assert.NoError(t, err)
	assert.False(t, ok)

	t.Log("✅ 惰性订阅测试通过")
}

// TestBus_Broadcast 测试所有订阅者收到相同顺序的事件
func TestBus_Broadcast(t *testing.T) {
	bus := NewBus(16)
	subs := []*Subscription{bus.Subscribe(), bus.Subscribe(), bus.Subscribe()}

	for i := 0; i < 10; i++ {
		bus.Publish(newTestEvent(i))
	}

	for _, sub := range subs {
		for i := 0; i < 10; i++ {
			assert.Equal(t, i, nextN(t, sub))
		}
	}

	_, _, n := bus.Stats()
	assert.Equal(t, int64(3), n)
}

// TestBus_Lagged 测试慢订阅者收到滞后通知后继续
func TestBus_Lagged(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(newTestEvent(i))
	}

	_, err := sub.Next(context.Background())
	var lagged *LaggedError
	require.True(t, errors.As(err, &lagged))
	assert.Equal(t, uint64(6), lagged.Skipped)

	// 从最早保留的事件继续
	for i := 6; i < 10; i++ {
		assert.Equal(t, i, nextN(t, sub))
	}

	_, laggedTotal, _ := bus.Stats()
	assert.Equal(t, uint64(6), laggedTotal)

	t.Log("✅ 滞后通知测试通过")
}

// TestBus_PublishNeverBlocks 测试无人读取时发布不阻塞
func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(2)
	_ = bus.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish(newTestEvent(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

// TestBus_NextWaits 测试 Next 等待新事件
func TestBus_NextWaits(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(newTestEvent(42))
	}()

	assert.Equal(t, 42, nextN(t, sub))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestBus_CloseDrains 测试关闭后先读完剩余事件
func TestBus_CloseDrains(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	bus.Publish(newTestEvent(1))
	bus.Close()
	bus.Publish(newTestEvent(2))

	assert.Equal(t, 1, nextN(t, sub))
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

// TestBus_CloseWakesWaiters 测试关闭唤醒等待中的订阅者
func TestBus_CloseWakesWaiters(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = sub.Next(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Close()
	wg.Wait()
	assert.ErrorIs(t, err, ErrClosed)
}

// TestSubscription_WithTypes 测试类型过滤
func TestSubscription_WithTypes(t *testing.T) {
	bus := NewBus(8)
	sub := bus.Subscribe(WithTypes("wanted"), WithName("filtered"))

	bus.Publish(&testEvent{BaseEvent: types.NewBaseEvent("other"), N: 1})
	bus.Publish(&testEvent{BaseEvent: types.NewBaseEvent("wanted"), N: 2})

	assert.Equal(t, 2, nextN(t, sub))

	sub.Close()
	sub.Close()
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, _, n := bus.Stats()
	assert.Equal(t, int64(0), n)
}
