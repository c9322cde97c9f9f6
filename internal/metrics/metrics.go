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
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthEvent(event, outcome string)
	RecordGateDecision(decision string)
	RecordHTTPStatus(statusCode int)
	RecordImportResult(imported, skipped int)
	RecordImportFailure(reason string)
	RecordImportLatency(duration time.Duration)
	RecordResetTokensCleared(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents         *prometheus.CounterVec
	gateDecisions      *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	articlesImported   prometheus.Counter
	articlesSkipped    prometheus.Counter
	importFail         *prometheus.CounterVec
	importLatency      prometheus.Histogram
	resetTokensCleared prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_auth_events_total",
			Help: "認証イベント（ログイン、登録、パスワードリセット等）の結果別合計数",
		}, []string{"event", "outcome"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_gate_decisions_total",
			Help: "認可ゲートの判定結果別の合計数",
		}, []string{"decision"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		articlesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_import_articles_total",
			Help: "フィードから下書きとして取り込まれた記事の合計数",
		}),
		articlesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_import_skipped_total",
			Help: "取り込み済みのため読み飛ばした記事の合計数",
		}),
		importFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_import_fail_total",
			Help: "フィードインポート失敗の原因別合計数",
		}, []string{"reason"}),
		importLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdesk_import_latency_seconds",
			Help:    "フィードインポートのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		resetTokensCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_reset_tokens_cleared_total",
			Help: "期限切れで消去されたリセットコードの合計数",
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.gateDecisions,
		c.httpStatus,
		c.articlesImported,
		c.articlesSkipped,
		c.importFail,
		c.importLatency,
		c.resetTokensCleared,
	)

	return c
}

// RecordAuthEvent は認証イベントの結果を記録する。
func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordGateDecision は認可ゲートの判定を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordImportResult は取り込み件数と読み飛ばし件数を記録する。
func (c *Collector) RecordImportResult(imported, skipped int) {
	c.articlesImported.Add(float64(imported))
	c.articlesSkipped.Add(float64(skipped))
}

// RecordImportFailure はインポート失敗を記録する。
func (c *Collector) RecordImportFailure(reason string) {
	c.importFail.WithLabelValues(reason).Inc()
}

// RecordImportLatency はインポートのレイテンシを記録する。
func (c *Collector) RecordImportLatency(duration time.Duration) {
	c.importLatency.Observe(duration.Seconds())
}

// RecordResetTokensCleared は消去されたリセットコード数を記録する。
func (c *Collector) RecordResetTokensCleared(count int64) {
	c.resetTokensCleared.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクス未設定時とテストで使用する。
type Nop struct{}

func (Nop) RecordAuthEvent(string, string)    {}
func (Nop) RecordGateDecision(string)         {}
func (Nop) RecordHTTPStatus(int)              {}
func (Nop) RecordImportResult(int, int)       {}
func (Nop) RecordImportFailure(string)        {}
func (Nop) RecordImportLatency(time.Duration) {}
func (Nop) RecordResetTokensCleared(int64)    {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
