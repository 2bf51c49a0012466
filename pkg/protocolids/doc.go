// Package protocolids 定义 go-nest 所有协议的唯一协议 ID 注册表。
//
// # 协议命名规范
//
//   - 协议 ID: /nest/{name}/{version}
//     例如: /nest/blob/1.0.0, /nest/messaging/1.0.0
//
// 协议版本采用语义化版本号，major 变更表示不兼容的帧格式变化。
// 用户自定义协议不得使用 /nest/ 前缀。
package protocolids
