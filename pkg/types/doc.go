// Package types 定义 go-nest 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 包含标识符、命令与请求、事件以及公共错误定义，
// 供执行器、网络引擎与各协议处理器之间传递数据。
package types
