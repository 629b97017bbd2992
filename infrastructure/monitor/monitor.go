package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 决策循环
	ticks       prometheus.Counter
	tickErrors  *prometheus.CounterVec
	tickLatency prometheus.Histogram

	// 信号
	rawImbalance prometheus.Gauge
	signal       prometheus.Gauge
	signalStd    prometheus.Gauge
	windowSize   prometheus.Gauge

	// 报价
	midPrice  prometheus.Gauge
	fairPrice prometheus.Gauge
	bidPrice  prometheus.Gauge
	askPrice  prometheus.Gauge
	position  prometheus.Gauge

	// 对账动作
	actions      *prometheus.CounterVec
	ordersPlaced prometheus.Counter

	// 行情流
	streamState   prometheus.Gauge
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter

	// 配置
	configReloads prometheus.Counter

	// REST
	restRequests *prometheus.CounterVec
	restErrors   *prometheus.CounterVec
	restLatency  *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "mm",
		Subsystem: "obi",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}

	return &Monitor{
		registry: reg,

		ticks: counter("ticks_total", "处理的深度快照总数"),
		tickErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_errors_total",
			Help:      "按阶段统计的 tick 失败次数",
		}, []string{"stage"}),
		tickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_latency_seconds",
			Help:      "单轮决策耗时（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		rawImbalance: gauge("raw_imbalance", "带内买卖量差"),
		signal:       gauge("signal", "标准化后的失衡信号"),
		signalStd:    gauge("signal_std", "窗口内失衡的标准差"),
		windowSize:   gauge("window_samples", "窗口内样本数"),

		midPrice:  gauge("mid_price", "当前中间价"),
		fairPrice: gauge("fair_price", "信号调整后的公允价"),
		bidPrice:  gauge("bid_price", "当前买单报价"),
		askPrice:  gauge("ask_price", "当前卖单报价"),
		position:  gauge("position", "当前净仓位"),

		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "actions_total",
			Help:      "对账产生的动作数",
		}, []string{"kind"}),
		ordersPlaced: counter("orders_placed_total", "成功提交的订单数"),

		streamState:   gauge("stream_state", "行情流状态(0=idle,1=streaming,2=reconnecting,3=closed)"),
		wsConnections: counter("ws_connections_total", "WebSocket连接次数"),
		wsDisconnects: counter("ws_disconnects_total", "WebSocket断开次数"),

		configReloads: counter("config_reloads_total", "参数热更新次数"),

		restRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_requests_total",
			Help:      "REST请求总数",
		}, []string{"action"}),
		restErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_errors_total",
			Help:      "REST错误总数",
		}, []string{"action"}),
		restLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_latency_seconds",
			Help:      "REST请求延迟（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
}

// 决策循环
func (m *Monitor) RecordTick(seconds float64) {
	m.ticks.Inc()
	m.tickLatency.Observe(seconds)
}

func (m *Monitor) RecordTickError(stage string) {
	m.tickErrors.WithLabelValues(stage).Inc()
}

// 信号
func (m *Monitor) UpdateSignal(raw, signal, std float64, samples int) {
	m.rawImbalance.Set(raw)
	m.signal.Set(signal)
	m.signalStd.Set(std)
	m.windowSize.Set(float64(samples))
}

// 报价
func (m *Monitor) UpdateQuote(mid, fair, bid, ask float64) {
	m.midPrice.Set(mid)
	m.fairPrice.Set(fair)
	m.bidPrice.Set(bid)
	m.askPrice.Set(ask)
}

func (m *Monitor) UpdatePosition(value float64) {
	m.position.Set(value)
}

// RecordAction kind 取 cancel_all / create_buy / create_sell
func (m *Monitor) RecordAction(kind string) {
	m.actions.WithLabelValues(kind).Inc()
}

func (m *Monitor) RecordOrdersPlaced(n int) {
	m.ordersPlaced.Add(float64(n))
}

// 行情流
func (m *Monitor) UpdateStreamState(state int) {
	m.streamState.Set(float64(state))
}

func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

func (m *Monitor) RecordConfigReload() {
	m.configReloads.Inc()
}

// REST，实现 gateway.RESTRecorder
func (m *Monitor) RecordRESTRequest(action string) {
	m.restRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTError(action string) {
	m.restErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
