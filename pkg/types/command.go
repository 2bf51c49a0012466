package types

import (
	"context"
	"sync"
)

// ============================================================================
//                              Command - 命令
// ============================================================================

// Command 提交给执行器的命令变体
//
// Protocol 返回负责处理该命令的协议；执行器自身处理的命令
// 返回空协议 ID。每个变体的文档注释说明它是否需要应答以及应答的类型。
type Command interface {
	Protocol() ProtocolID
}

// ============================================================================
//                              Request - 请求
// ============================================================================

// Result 请求的应答
type Result struct {
	Value any
	Err   error
}

// Request 一条命令及其可选的一次性应答槽
//
// 应答槽容量为 1，Reply 永不阻塞执行器循环；
// 第二次及以后的 Reply 调用被忽略。
type Request struct {
	Cmd Command

	reply chan Result
	done  <-chan struct{}
	once  sync.Once
}

// NewRequest 创建需要应答的请求
//
// ctx 的取消信号用于让执行器惰性清理已放弃的请求。
func NewRequest(ctx context.Context, cmd Command) *Request {
	return &Request{
		Cmd:   cmd,
		reply: make(chan Result, 1),
		done:  ctx.Done(),
	}
}

// NewNotification 创建无需应答的请求
func NewNotification(cmd Command) *Request {
	return &Request{Cmd: cmd}
}

// ExpectsReply 是否需要应答
func (r *Request) ExpectsReply() bool {
	return r.reply != nil
}

// Abandoned 调用方是否已放弃等待
func (r *Request) Abandoned() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Reply 投递应答，返回是否为首次投递
func (r *Request) Reply(v any, err error) bool {
	if r.reply == nil {
		return false
	}
	delivered := false
	r.once.Do(func() {
		r.reply <- Result{Value: v, Err: err}
		delivered = true
	})
	return delivered
}

// ReplyChan 返回应答通道，无需应答的请求返回 nil
func (r *Request) ReplyChan() <-chan Result {
	return r.reply
}

// Wait 等待应答或 ctx 结束
func (r *Request) Wait(ctx context.Context) (any, error) {
	if r.reply == nil {
		return nil, nil
	}
	select {
	case res := <-r.reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
