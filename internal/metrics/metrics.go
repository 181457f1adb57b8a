// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// トークン交換の結果ラベル。
const (
	ExchangeResultOK               = "ok"
	ExchangeResultInvalidIDToken   = "invalid_id_token"
	ExchangeResultEmailNotVerified = "email_not_verified"
	ExchangeResultError            = "error"
)

// セッショントークン検証の結果ラベル。
const (
	ValidationResultValid   = "valid"
	ValidationResultExpired = "expired"
	ValidationResultInvalid = "invalid"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordTokenExchange(result string)
	RecordSessionValidation(result string)
	RecordUserProvisioned()
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokenExchange     *prometheus.CounterVec
	sessionValidation *prometheus.CounterVec
	usersProvisioned  prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestDuration   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenExchange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenbridge_token_exchange_total",
			Help: "結果別のトークン交換数",
		}, []string{"result"}),
		sessionValidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenbridge_session_validation_total",
			Help: "結果別のセッショントークン検証数",
		}, []string{"result"}),
		usersProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenbridge_users_provisioned_total",
			Help: "新規作成されたユーザーの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenbridge_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokenbridge_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.tokenExchange,
		c.sessionValidation,
		c.usersProvisioned,
		c.httpStatus,
		c.requestDuration,
	)

	return c
}

// RecordTokenExchange はトークン交換の結果を記録する。
func (c *Collector) RecordTokenExchange(result string) {
	c.tokenExchange.WithLabelValues(result).Inc()
}

// RecordSessionValidation はセッショントークン検証の結果を記録する。
func (c *Collector) RecordSessionValidation(result string) {
	c.sessionValidation.WithLabelValues(result).Inc()
}

// RecordUserProvisioned はユーザーの新規作成を記録する。
func (c *Collector) RecordUserProvisioned() {
	c.usersProvisioned.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

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

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成とテストで使用する。
type Nop struct{}

func (Nop) RecordTokenExchange(string)          {}
func (Nop) RecordSessionValidation(string)      {}
func (Nop) RecordUserProvisioned()              {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordRequestDuration(time.Duration) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
