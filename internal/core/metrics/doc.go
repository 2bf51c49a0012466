// Package metrics 提供 Prometheus 监控指标
//
// 所有指标注册在私有 Registry 上，不污染全局默认注册表，
// 同一进程内的多个节点互不干扰。
//
// # 快速开始
//
//	m := metrics.New("nest")
//	m.CommandHandled("dial")
//	m.BlobFinished(types.DirSend, "completed", 4096)
//
//	http.Handle("/metrics", m.Handler())
//
// 所有记录方法对 nil 接收者安全，组件可以在未启用指标时直接调用。
package metrics
