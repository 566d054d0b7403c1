// Package metrics 提供客户端的 Prometheus 指标
//
// 所有指标在包加载时注册到默认 Registry，宿主进程暴露
// /metrics 端点即可采集。未暴露端点时指标仅在进程内累积，
// 无额外开销。
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets 适配 LLM 推理延迟的直方图分桶（100ms ~ 120s）
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal 按端点和状态统计请求总数
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openai_client_requests_total",
			Help: "Total API requests",
		},
		[]string{"endpoint", "status"},
	)

	// RequestDuration 按端点统计请求耗时（秒，含重试）
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openai_client_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"endpoint"},
	)

	// StreamsActive 当前活跃的 SSE 流数量
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "openai_client_streams_active",
			Help: "Active SSE streams",
		},
	)

	// TokensTotal 按模型和方向（prompt/completion）统计 token 消耗
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openai_client_tokens_total",
			Help: "Token usage",
		},
		[]string{"model", "direction"},
	)

	// RetriesTotal 按端点统计重试次数
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openai_client_retries_total",
			Help: "Request retries",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamsActive,
		TokensTotal,
		RetriesTotal,
	)
}

// RecordTokens 记录一次请求的 token 用量
//
// prompt/completion 任一为 0 时跳过该方向，避免产生空序列。
func RecordTokens(model string, promptTokens, completionTokens int64) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		TokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		TokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}
