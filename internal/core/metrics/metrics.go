package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-nest/pkg/types"
)

// Metrics 节点指标集合
type Metrics struct {
	reg *prometheus.Registry

	// 执行器
	CommandsTotal   *prometheus.CounterVec
	EventsTotal     *prometheus.CounterVec
	PendingRequests prometheus.Gauge
	LoopIterations  prometheus.Counter
	HandlerFailures *prometheus.CounterVec

	// 文件块传输
	BlobTransfers   *prometheus.CounterVec
	BlobBytes       *prometheus.CounterVec
	BlobPendingRecv prometheus.Gauge
	BlobViolations  prometheus.Counter

	// 消息
	MessagesTotal *prometheus.CounterVec
}

// New 创建指标集合
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,

		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "commands_total",
			Help:      "Commands handled by the executor loop, by command kind",
		}, []string{"kind"}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "events_total",
			Help:      "Events published on the event bus, by event type",
		}, []string{"type"}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "pending_requests",
			Help:      "Requests parked in the pending-request table",
		}),
		LoopIterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "loop_iterations_total",
			Help:      "Executor loop iterations",
		}),
		HandlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "handler_failures_total",
			Help:      "Protocol handler panics and errors, by protocol",
		}, []string{"protocol"}),

		BlobTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "transfers_total",
			Help:      "Finished blob transfers, by direction and outcome",
		}, []string{"direction", "outcome"}),
		BlobBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "bytes_total",
			Help:      "Blob payload bytes transferred, by direction",
		}, []string{"direction"}),
		BlobPendingRecv: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "pending_recv",
			Help:      "Live pending receive records",
		}),
		BlobViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "protocol_violations_total",
			Help:      "Protocol violations observed from remote peers",
		}),

		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "messages_total",
			Help:      "Direct messages, by direction",
		}, []string{"direction"}),
	}
}

// Registry 返回私有注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler 返回 /metrics HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RegisterRuntime 注册 Go 运行时与进程指标
func (m *Metrics) RegisterRuntime() {
	if m == nil {
		return
	}
	m.reg.MustRegister(collectors.NewGoCollector())
	m.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// BusStats 事件总线统计来源
type BusStats interface {
	Stats() (published, lagged uint64, subscribers int64)
}

// RegisterBus 以回调形式导出事件总线统计
func (m *Metrics) RegisterBus(namespace string, bus BusStats) {
	if m == nil || bus == nil {
		return
	}
	factory := promauto.With(m.reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "lagged_events_total",
		Help:      "Events skipped by lagging subscribers",
	}, func() float64 {
		_, lagged, _ := bus.Stats()
		return float64(lagged)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "subscribers",
		Help:      "Live event bus subscriptions",
	}, func() float64 {
		_, _, n := bus.Stats()
		return float64(n)
	})
}

// ============================================================================
//                              记录方法
// ============================================================================

// CommandHandled 记录一条命令
func (m *Metrics) CommandHandled(kind string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(kind).Inc()
}

// EventPublished 记录一个事件
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

// SetPending 更新挂起请求数
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

// LoopIteration 记录一次循环迭代
func (m *Metrics) LoopIteration() {
	if m == nil {
		return
	}
	m.LoopIterations.Inc()
}

// HandlerFailed 记录处理器失败
func (m *Metrics) HandlerFailed(protocol types.ProtocolID) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(string(protocol)).Inc()
}

// BlobFinished 记录一个传输的终态
func (m *Metrics) BlobFinished(dir types.TransferDirection, outcome string, bytes uint64) {
	if m == nil {
		return
	}
	m.BlobTransfers.WithLabelValues(dir.String(), outcome).Inc()
	if bytes > 0 {
		m.BlobBytes.WithLabelValues(dir.String()).Add(float64(bytes))
	}
}

// SetBlobPendingRecv 更新挂起接收记录数
func (m *Metrics) SetBlobPendingRecv(n int) {
	if m == nil {
		return
	}
	m.BlobPendingRecv.Set(float64(n))
}

// BlobViolation 记录一次协议违规
func (m *Metrics) BlobViolation() {
	if m == nil {
		return
	}
	m.BlobViolations.Inc()
}

// MessageSent 记录发出的消息
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues("out").Inc()
}

// MessageReceived 记录收到的消息
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues("in").Inc()
}
