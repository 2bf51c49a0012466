// Package blob 实现文件块传输协议
//
// 协议标识: /nest/blob/1.0.0
//
// 文件块按序号分块发送，发送方与接收方各自维护独立的状态机：
//
//	发送方: PendingSend ──accept──▶ OngoingSend ──最后一块被确认──▶ Completed
//	接收方: PendingRecv ──accept──▶ OngoingRecv ──最后一块校验通过──▶ Completed
//
// 挂起阶段可以被拒绝、取消或超时；进行中阶段可以因超时、连接断开、
// 完整性校验失败或对端中止而失败。每个传输在每一端只产生一个终态事件。
//
// # 线格式
//
// 每条消息是一帧：uvarint 长度前缀 + protowire 编码的帧体，
// 帧体字段 1 为消息类别：
//
//	OFFER(1)   发送方 → 接收方  id, size, name, digest, compression
//	ACCEPT(2)  接收方 → 发送方  id
//	REJECT(3)  接收方 → 发送方  id, reason
//	CHUNK(4)   发送方 → 接收方  id, seq, data, final, compressed, digest
//	ACK(5)     接收方 → 发送方  id, seq, final
//	CANCEL(6)  发送方 → 接收方  id
//	ABORT(7)   接收方 → 发送方  id, reason
//
// 序号从 0 开始严格递增且无空洞，最后一块带 final 标记；
// 空文件块是一个空的 final 块。每个传输最多 ChunkWindow 个未确认数据块。
//
// # 并发
//
// Handler 的所有状态只在执行器循环内访问。读取数据源、写入接收端
// 在独立 goroutine 中进行，结果经 HandlerContext.Post 回到循环。
package blob
