package eventbus

import (
	"context"
	"sync/atomic"

	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 总线订阅
//
// 单个 Subscription 不应被多个 goroutine 并发读取。
type Subscription struct {
	bus    *Bus
	next   uint64
	filter map[string]struct{}
	name   string
	closed atomic.Bool
}

// Next 阻塞读取下一个事件
//
// 落后时返回 *LaggedError（游标已前移到最早保留的事件）；
// 总线关闭且事件读完后返回 ErrClosed。
func (s *Subscription) Next(ctx context.Context) (types.Event, error) {
	for {
		if s.closed.Load() {
			return nil, ErrClosed
		}

		ev, skipped, next, wake, closed := s.bus.read(s.next)
		s.next = next

		if skipped > 0 {
			s.bus.lagged.Add(skipped)
			logger.Warn("慢订阅者落后，跳过事件", "subscription", s.name, "skipped", skipped)
			return nil, &LaggedError{Skipped: skipped}
		}
		if ev != nil {
			if s.accept(ev) {
				return ev, nil
			}
			continue
		}
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryNext 非阻塞读取，没有事件时 ok 为 false
func (s *Subscription) TryNext() (ev types.Event, ok bool, err error) {
	for {
		if s.closed.Load() {
			return nil, false, ErrClosed
		}

		e, skipped, next, _, closed := s.bus.read(s.next)
		s.next = next

		if skipped > 0 {
			s.bus.lagged.Add(skipped)
			return nil, false, &LaggedError{Skipped: skipped}
		}
		if e != nil {
			if s.accept(e) {
				return e, true, nil
			}
			continue
		}
		if closed {
			return nil, false, ErrClosed
		}
		return nil, false, nil
	}
}

// Close 取消订阅，可多次调用
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.bus.subscribers.Add(-1)
	}
}

func (s *Subscription) accept(ev types.Event) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[ev.Type()]
	return ok
}
