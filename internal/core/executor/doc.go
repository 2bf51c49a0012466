// Package executor 实现 Swarm 执行器
//
// 执行器是网络引擎的唯一驱动者：一个 goroutine 运行的控制循环
// 独占引擎句柄、协议处理器与挂起请求表，外部代码只能通过
// 命令（Command）与事件（Event）与其交互。
//
// # 循环迭代
//
// 每次迭代：
//  1. 取出命令（单个来源最多 FairnessLimit 条）
//  2. 取出引擎事件与内部消息
//  3. 路由：连接事件发布到总线并通知所有处理器，
//     协议帧交给所属处理器，处理器产生的事件发布到总线
//  4. 清扫：挂起请求与各处理器的带期限记录与时钟比较
//
// 阻塞工作（拨号、监听、开流、流读写）都在独立 goroutine 中完成，
// 结果经内部收件箱回到循环。
//
// # 请求关联
//
// 需要异步完成的请求进入挂起表，分配单调递增的 CorrelationID，
// 恰好被解决一次：应答、超时（ErrTimeout）或执行器停止（ErrExecutorShutDown）。
// 调用方放弃等待的请求在下一次清扫时被移除。
//
// # 故障隔离
//
// 处理器回调中的 panic 与返回的错误被恢复并转换为 EvtHandlerFailed，
// 正在处理的请求以 ErrHandlerFailed 应答，循环继续运行。
package executor
