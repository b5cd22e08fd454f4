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
	RecordSessionCreated()
	RecordSessionResolved(outcome string)
	RecordSignup(outcome string)
	RecordLogin(outcome string)
	RecordRoomCreated()
	RecordJoin(outcome string)
	RecordLeave(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsPurged(count int)
	RecordPanic()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsCreated  prometheus.Counter
	sessionsResolved *prometheus.CounterVec
	signups          *prometheus.CounterVec
	logins           *prometheus.CounterVec
	roomsCreated     prometheus.Counter
	joins            *prometheus.CounterVec
	leaves           *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
	sessionsPurged   prometheus.Counter
	panics           prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campustaxi_sessions_created_total",
			Help: "発行されたセッションの合計数",
		}),
		sessionsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campustaxi_session_resolve_total",
			Help: "セッション検証の結果別の合計数",
		}, []string{"outcome"}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campustaxi_signup_total",
			Help: "アカウント登録の結果別の合計数",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campustaxi_login_total",
			Help: "ログインの結果別の合計数",
		}, []string{"outcome"}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campustaxi_rooms_created_total",
			Help: "作成されたルームの合計数",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campustaxi_room_join_total",
			Help: "ルーム参加要求の結果別の合計数",
		}, []string{"outcome"}),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campustaxi_room_leave_total",
			Help: "ルーム退出要求の結果別の合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campustaxi_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campustaxi_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campustaxi_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campustaxi_http_panics_total",
			Help: "ハンドラーで回復したpanicの合計数",
		}),
	}

	reg.MustRegister(
		c.sessionsCreated,
		c.sessionsResolved,
		c.signups,
		c.logins,
		c.roomsCreated,
		c.joins,
		c.leaves,
		c.httpStatus,
		c.requestLatency,
		c.sessionsPurged,
		c.panics,
	)

	return c
}

// RecordSessionCreated はセッション発行を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionResolved はセッション検証の結果を記録する。
func (c *Collector) RecordSessionResolved(outcome string) {
	c.sessionsResolved.WithLabelValues(outcome).Inc()
}

// RecordSignup はアカウント登録の結果を記録する。
func (c *Collector) RecordSignup(outcome string) {
	c.signups.WithLabelValues(outcome).Inc()
}

// RecordLogin はログインの結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRoomCreated はルーム作成を記録する。
func (c *Collector) RecordRoomCreated() {
	c.roomsCreated.Inc()
}

// RecordJoin はルーム参加の結果を記録する。
func (c *Collector) RecordJoin(outcome string) {
	c.joins.WithLabelValues(outcome).Inc()
}

// RecordLeave はルーム退出の結果を記録する。
func (c *Collector) RecordLeave(outcome string) {
	c.leaves.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int) {
	c.sessionsPurged.Add(float64(count))
}

// RecordPanic はリカバリーミドルウェアで回復したpanicを記録する。
func (c *Collector) RecordPanic() {
	c.panics.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
