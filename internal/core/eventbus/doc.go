// Package eventbus 实现执行器的广播事件总线
//
// 总线保留最近 N 个事件（环形缓冲），每个订阅者维护自己的读游标：
//   - 惰性订阅：只收到订阅之后发布的事件
//   - 发布永不阻塞：慢订阅者不会拖慢执行器循环
//   - 滞后通知：订阅者落后超过 N 个事件时，Next 返回 *LaggedError，
//     其中给出被跳过的事件数，随后从最早保留的事件继续
//   - 关闭后订阅者先读完剩余事件，再收到 ErrClosed
//
// # 快速开始
//
//	bus := eventbus.NewBus(1024)
//
//	sub := bus.Subscribe(eventbus.WithTypes(types.EventTypeBlobCompleted))
//	defer sub.Close()
//
//	for {
//	    ev, err := sub.Next(ctx)
//	    var lagged *eventbus.LaggedError
//	    if errors.As(err, &lagged) {
//	        continue
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(ev)
//	}
package eventbus
