package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("core/eventbus")

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭且事件已读完
	ErrClosed = errors.New("eventbus closed")
)

// LaggedError 订阅者落后于总线保留窗口
type LaggedError struct {
	Skipped uint64
}

// Error 实现 error 接口
func (e *LaggedError) Error() string {
	return fmt.Sprintf("eventbus: subscriber lagged, %d events skipped", e.Skipped)
}

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 广播事件总线
type Bus struct {
	mu     sync.Mutex
	ring   []types.Event
	head   uint64 // 下一个事件的序号
	closed bool

	// wake 在每次发布或关闭时被关闭并替换，用于唤醒等待中的订阅者
	wake chan struct{}

	published   atomic.Uint64
	lagged      atomic.Uint64
	subscribers atomic.Int64
}

// NewBus 创建保留 backlog 个事件的总线
func NewBus(backlog int) *Bus {
	if backlog <= 0 {
		backlog = 1
	}
	return &Bus{
		ring: make([]types.Event, backlog),
		wake: make(chan struct{}),
	}
}

// Publish 发布事件，永不阻塞
//
// 总线关闭后的事件被丢弃。
func (b *Bus) Publish(ev types.Event) {
	if ev == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.ring[b.head%uint64(len(b.ring))] = ev
	b.head++
	wake := b.wake
	b.wake = make(chan struct{})
	b.mu.Unlock()

	b.published.Add(1)
	close(wake)
}

// Subscribe 创建订阅，只接收此后发布的事件
func (b *Bus) Subscribe(opts ...SubscriptionOpt) *Subscription {
	settings := subscriptionSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	b.mu.Lock()
	next := b.head
	b.mu.Unlock()

	b.subscribers.Add(1)
	return &Subscription{
		bus:    b,
		next:   next,
		filter: settings.filter(),
		name:   settings.name,
	}
}

// Close 关闭总线，订阅者读完剩余事件后收到 ErrClosed
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	wake := b.wake
	b.mu.Unlock()

	close(wake)
}

// Backlog 返回保留窗口大小
func (b *Bus) Backlog() int {
	return len(b.ring)
}

// Stats 返回累计发布数、累计滞后跳过数与当前订阅者数
func (b *Bus) Stats() (published, lagged uint64, subscribers int64) {
	return b.published.Load(), b.lagged.Load(), b.subscribers.Load()
}

// read 读取序号为 seq 的事件
//
// 返回的 wake 通道在没有新事件时用于等待。
func (b *Bus) read(seq uint64) (ev types.Event, skipped uint64, next uint64, wake <-chan struct{}, closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := uint64(len(b.ring))
	if b.head > size && seq < b.head-size {
		oldest := b.head - size
		return nil, oldest - seq, oldest, nil, false
	}
	if seq < b.head {
		return b.ring[seq%size], 0, seq + 1, nil, false
	}
	return nil, 0, seq, b.wake, b.closed
}
