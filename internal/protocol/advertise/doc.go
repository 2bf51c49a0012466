// Package advertise 实现节点广告协议
//
// 协议标识: /nest/advertise/1.0.0
//
// 节点可以作为广告提供者（provider）：其他节点请求它代为广告自己，
// 提供者把这些节点记入广告列表，并在被查询时返回列表。
// 被广告的节点断开连接后自动从列表中移除。
//
// # 消息
//
//	QUERY       查询对端的广告列表
//	ANSWER      应答 QUERY；对端不是提供者时 providing=false 且列表为空
//	SET         请求对端开始或停止广告本节点
//	SET_RESULT  应答 SET；列表已满时 ok=false
//
// 请求与应答通过请求方分配的 req 编号关联，请求方把命令停放在
// 执行器挂起表中，超过 AdvertiseConfig.QueryTimeout 以 types.ErrTimeout 应答。
//
// # 帧格式
//
//	1 kind       varint
//	2 req        varint
//	3 flag       varint  ANSWER: providing；SET: state；SET_RESULT: ok
//	4 peer       bytes   ANSWER 中可重复
package advertise
