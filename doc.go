// Package nest 提供基于单一控制循环的 P2P 节点
//
// 一个 Node 由网络引擎、Swarm 执行器和若干自定义协议处理器组成。
// 执行器独占网络状态，所有操作都以命令形式提交，所有变化都以事件形式发布。
//
// # 内置协议
//
//   - Blob: 文件块传输，邀约/接受、分块流控、超时与完整性校验
//   - Messaging: 点对点直发消息，确认往返
//   - Advertise: 节点广告，提供者列表与远程查询
//
// # 快速开始
//
//	import "github.com/dep2p/go-nest"
//
//	node, err := nest.New(
//	    nest.WithListenAddrs("127.0.0.1:0"),
//	    nest.WithIdentityKeyFile("node.key"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	sub := node.Subscribe()
//	peer, _ := node.Dial(ctx, "127.0.0.1:4001")
//	id, _ := node.Blob().SendFile(ctx, peer, "report.pdf")
//
// # 观察事件
//
// Subscribe 返回的订阅按发布顺序交付所有事件；
// 读取太慢的订阅者会收到滞后通知（eventbus.LaggedError）而不会阻塞执行器。
//
// # 嵌入与测试
//
// WithEngine 可以替换网络引擎，例如 memnet 内存网络；
// WithClock 可以注入 clock.NewMock() 以确定性地推进超时。
package nest
