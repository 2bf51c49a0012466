package engine

import (
	"sync"

	"github.com/dep2p/go-nest/pkg/interfaces"
)

// EventQueue 无界引擎事件队列
//
// Push 永不阻塞，事件按入队顺序从 Events 通道送出。
// Close 后通道被关闭，之后入队的事件被丢弃。
type EventQueue struct {
	mu     sync.Mutex
	queue  []interfaces.EngineEvent
	closed bool

	signal chan struct{}
	out    chan interfaces.EngineEvent
	quit   chan struct{}
	done   chan struct{}
}

// NewEventQueue 创建事件队列并启动转发 goroutine
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan interfaces.EngineEvent),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Push 入队一个事件
func (q *EventQueue) Push(ev interfaces.EngineEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Events 返回输出通道
func (q *EventQueue) Events() <-chan interfaces.EngineEvent {
	return q.out
}

// Close 停止转发并关闭输出通道
func (q *EventQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.queue = nil
	q.mu.Unlock()

	close(q.quit)
	<-q.done
}

func (q *EventQueue) run() {
	defer close(q.done)
	defer close(q.out)

	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			select {
			case <-q.signal:
				continue
			case <-q.quit:
				return
			}
		}
		ev := q.queue[0]
		q.queue[0] = interfaces.EngineEvent{}
		q.queue = q.queue[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.quit:
			return
		}
	}
}
