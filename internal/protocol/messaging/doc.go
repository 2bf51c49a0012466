// Package messaging 实现点对点直发消息协议
//
// 协议标识: /nest/messaging/1.0.0
//
// 每条消息带一个 UUID，接收方对每条收到的消息（包括重复消息）
// 回复 ACK。发送方把 Send 请求停放在执行器挂起表中，收到 ACK
// 后以往返时间应答；超过 MessagingConfig.SendTimeout 仍未确认的
// 请求由执行器以 types.ErrTimeout 应答。
//
// 接收方用一个固定容量的 LRU 缓存记录最近见过的 (发送方, 消息 ID)，
// 重复消息只确认，不再发布 EvtMessageReceived。
//
// # 帧格式
//
// 帧体为 protowire 字段序列：
//
//	1 kind     varint  1=MSG 2=ACK
//	2 id       bytes   消息 ID
//	3 payload  bytes   仅 MSG
//	4 sent_at  varint  仅 MSG，发送方时钟的 Unix 毫秒
package messaging
