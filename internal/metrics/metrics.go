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
// 外部APIクライアントや状態コンテナから利用する。
type MetricsCollector interface {
	RecordStoreRequest(op string, success bool)
	RecordStoreLatency(op string, duration time.Duration)
	RecordAuthAttempt(mode string, success bool)
	RecordBootstrap(success bool)
	RecordTrackEvent()
}

// Discard は何も記録しないMetricsCollector。
var Discard MetricsCollector = discard{}

type discard struct{}

func (discard) RecordStoreRequest(string, bool)           {}
func (discard) RecordStoreLatency(string, time.Duration) {}
func (discard) RecordAuthAttempt(string, bool)            {}
func (discard) RecordBootstrap(bool)                      {}
func (discard) RecordTrackEvent()                         {}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storeRequests *prometheus.CounterVec
	storeLatency  *prometheus.HistogramVec
	authAttempts  *prometheus.CounterVec
	bootstraps    *prometheus.CounterVec
	trackEvents   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wdblog_store_requests_total",
			Help: "リモート記事ストアへのリクエスト数（操作・成否別）",
		}, []string{"op", "success"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wdblog_store_latency_seconds",
			Help:    "リモート記事ストア呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wdblog_auth_attempts_total",
			Help: "Identityサービスとのトークン交換回数（モード・成否別）",
		}, []string{"mode", "success"}),
		bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wdblog_bootstrap_total",
			Help: "レンダーコンテキスト初期ロードの回数（成否別）",
		}, []string{"success"}),
		trackEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wdblog_track_events_total",
			Help: "受信した解析イベントの合計数",
		}),
	}

	reg.MustRegister(
		c.storeRequests,
		c.storeLatency,
		c.authAttempts,
		c.bootstraps,
		c.trackEvents,
	)

	return c
}

// RecordStoreRequest はリモート記事ストアへのリクエスト結果を記録する。
func (c *Collector) RecordStoreRequest(op string, success bool) {
	c.storeRequests.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

// RecordStoreLatency はリモート記事ストア呼び出しのレイテンシを記録する。
func (c *Collector) RecordStoreLatency(op string, duration time.Duration) {
	c.storeLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordAuthAttempt はトークン交換の結果を記録する。modeは signIn または signUp。
func (c *Collector) RecordAuthAttempt(mode string, success bool) {
	c.authAttempts.WithLabelValues(mode, strconv.FormatBool(success)).Inc()
}

// RecordBootstrap は初期ロードの結果を記録する。
func (c *Collector) RecordBootstrap(success bool) {
	c.bootstraps.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordTrackEvent は解析イベントの受信を記録する。
func (c *Collector) RecordTrackEvent() {
	c.trackEvents.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
