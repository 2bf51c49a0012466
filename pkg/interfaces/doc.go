// Package interfaces 定义 go-nest 的公共接口契约
//
// 执行器只通过这里的窄接口与外部协作者交互：
//   - Engine: 网络引擎（连接、流、监听），由执行器独占驱动
//   - Stream: 已协商到某个协议的双向字节流
//   - ProtocolHandler / HandlerContext: 自定义协议挂载到执行器的契约
//
// 接口只依赖 pkg/types，不依赖任何 internal 包。
package interfaces
