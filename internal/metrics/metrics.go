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
// APIクライアントとセッションストアから利用する。
type MetricsCollector interface {
	RecordAPIRequest(method string, statusCode int)
	RecordAPILatency(duration time.Duration)
	RecordSessionTransition(to string)
	RecordAuthFailure(operation string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests        *prometheus.CounterVec
	apiLatency         prometheus.Histogram
	sessionTransitions *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_api_requests_total",
			Help: "バックエンドAPI呼び出しの合計数（ステータスコード別、0は接続失敗）",
		}, []string{"method", "status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthtrack_api_request_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_session_transitions_total",
			Help: "セッション状態遷移の合計数（遷移先別）",
		}, []string{"to"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_auth_failures_total",
			Help: "ログイン・サインアップ失敗の合計数",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.sessionTransitions,
		c.authFailures,
	)

	return c
}

// RecordAPIRequest はAPI呼び出しの結果を記録する。
func (c *Collector) RecordAPIRequest(method string, statusCode int) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// RecordAPILatency はAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordAPILatency(duration time.Duration) {
	c.apiLatency.Observe(duration.Seconds())
}

// RecordSessionTransition はセッション状態遷移を記録する。
func (c *Collector) RecordSessionTransition(to string) {
	c.sessionTransitions.WithLabelValues(to).Inc()
}

// RecordAuthFailure は認証失敗を記録する。
func (c *Collector) RecordAuthFailure(operation string) {
	c.authFailures.WithLabelValues(operation).Inc()
}

// Nop は何も記録しないMetricsCollector。
// テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAPIRequest(string, int)   {}
func (Nop) RecordAPILatency(time.Duration) {}
func (Nop) RecordSessionTransition(string) {}
func (Nop) RecordAuthFailure(string)       {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
