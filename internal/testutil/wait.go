// Package testutil 提供测试辅助函数
package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/pkg/types"
)

// WaitForCondition 等待条件满足或超时
//
// 返回：条件是否满足（超时返回 false）
func WaitForCondition(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool) bool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if condition() {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}

// Eventually 在指定时间内重试条件检查，间隔 10ms，超时则 fail 测试
//
// 示例:
//
//	testutil.Eventually(t, 5*time.Second, func() bool {
//	    return len(client.ListPendingRecv()) == 1
//	}, "应该出现挂起接收记录")
func Eventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	if !WaitForCondition(t, timeout, 10*time.Millisecond, condition) {
		t.Fatalf("等待超时: %s", msg)
	}
}

// WaitEvent 从订阅中读取事件，直到出现满足 match 的 T 类型事件
//
// 滞后通知被忽略。match 为 nil 时返回第一个 T 类型事件。
func WaitEvent[T types.Event](t *testing.T, sub *eventbus.Subscription, timeout time.Duration, match func(T) bool) T {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var zero T
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lagged *eventbus.LaggedError
			if errors.As(err, &lagged) {
				continue
			}
			t.Fatalf("等待事件 %T 失败: %v", zero, err)
			return zero
		}
		typed, ok := ev.(T)
		if !ok {
			continue
		}
		if match == nil || match(typed) {
			return typed
		}
	}
}

// CollectEvents 在 d 时间内收集所有 T 类型事件
func CollectEvents[T types.Event](sub *eventbus.Subscription, d time.Duration) []T {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	var out []T
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lagged *eventbus.LaggedError
			if errors.As(err, &lagged) {
				continue
			}
			return out
		}
		if typed, ok := ev.(T); ok {
			out = append(out, typed)
		}
	}
}
