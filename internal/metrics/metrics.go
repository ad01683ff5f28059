// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 上流クライアントやハンドラー層から利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(endpoint string, statusCode int)
	RecordUpstreamFailure(endpoint string)
	RecordUpstreamLatency(endpoint string, duration time.Duration)
	RecordLogin(success bool)
	RecordConsentDecision(authorized bool)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	logins           *prometheus.CounterVec
	consentDecisions *prometheus.CounterVec
	sessionsCleaned  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_upstream_requests_total",
			Help: "MiniAuth API呼び出しのエンドポイント・ステータス別合計数",
		}, []string{"endpoint", "status_code"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_upstream_failures_total",
			Help: "MiniAuth API呼び出しの通信失敗の合計数",
		}, []string{"endpoint"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authgate_upstream_latency_seconds",
			Help:    "MiniAuth API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "ログイン試行の成否別合計数",
		}, []string{"result"}),
		consentDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_consent_decisions_total",
			Help: "同意画面での認可可否の合計数",
		}, []string{"decision"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamFailures,
		c.upstreamLatency,
		c.logins,
		c.consentDecisions,
		c.sessionsCleaned,
	)

	return c
}

// RecordUpstreamRequest は上流API呼び出しの完了を記録する。
func (c *Collector) RecordUpstreamRequest(endpoint string, statusCode int) {
	c.upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamFailure は上流API呼び出しの通信失敗を記録する。
func (c *Collector) RecordUpstreamFailure(endpoint string) {
	c.upstreamFailures.WithLabelValues(endpoint).Inc()
}

// RecordUpstreamLatency は上流API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(endpoint string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordLogin はログイン試行の成否を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordConsentDecision は同意画面での認可可否を記録する。
func (c *Collector) RecordConsentDecision(authorized bool) {
	decision := "denied"
	if authorized {
		decision = "authorized"
	}
	c.consentDecisions.WithLabelValues(decision).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
