// Package engine 提供 TCP 参考网络引擎
//
// 引擎是执行器独占的网络底座，负责连接生命周期、身份认证和多路复用流：
//
//   - TCP 监听与拨号，temp-err-catcher 处理 Accept 的临时错误
//   - Ed25519 挑战-应答握手，得到对端 PeerID
//   - yamux 多路复用（拨号方为客户端）
//   - 每条流以 multistream-select 协商协议
//
// 引擎所有可能阻塞的方法（Listen、Dial、OpenStream）由执行器放到独立
// goroutine 中调用；事件经无界 EventQueue 按产生顺序送出。
//
// 同一进程内测试可使用 memnet 子包提供的内存引擎。
package engine
