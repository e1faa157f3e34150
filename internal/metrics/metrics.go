// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 申込結果のラベル値。
const (
	OutcomeConfirmed = "confirmed"
	OutcomeWaitlist  = "waitlist"
	OutcomeRejected  = "rejected"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 各コンポーネントやワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordCancellation()
	RecordAttendanceAction(action string)
	RecordSessionEvent(kind string)
	RecordStorageFailure(key string, op string)
	RecordAbsenceSweep(marked int)
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations   *prometheus.CounterVec
	cancellations   prometheus.Counter
	attendance      *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	absenceMarked   prometheus.Counter
	httpStatus      *prometheus.CounterVec
	httpLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventease_registrations_total",
			Help: "結果別の申込受付数",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventease_registration_cancellations_total",
			Help: "申込キャンセルの合計数",
		}),
		attendance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventease_attendance_actions_total",
			Help: "出欠操作別の合計数",
		}, []string{"action"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventease_session_events_total",
			Help: "セッションイベント種別ごとの合計数",
		}, []string{"kind"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventease_storage_failures_total",
			Help: "ストレージ読み書き失敗の合計数",
		}, []string{"key", "op"}),
		absenceMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventease_absence_marked_total",
			Help: "欠席スイープで欠席扱いにした記録の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventease_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventease_http_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.cancellations,
		c.attendance,
		c.sessionEvents,
		c.storageFailures,
		c.absenceMarked,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordRegistration は申込の受付結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordCancellation は申込キャンセルを記録する。
func (c *Collector) RecordCancellation() {
	c.cancellations.Inc()
}

// RecordAttendanceAction は出欠操作を記録する。
func (c *Collector) RecordAttendanceAction(action string) {
	c.attendance.WithLabelValues(action).Inc()
}

// RecordSessionEvent はセッションイベントを記録する。
func (c *Collector) RecordSessionEvent(kind string) {
	c.sessionEvents.WithLabelValues(kind).Inc()
}

// RecordStorageFailure はストレージ失敗を記録する。
func (c *Collector) RecordStorageFailure(key string, op string) {
	c.storageFailures.WithLabelValues(key, op).Inc()
}

// RecordAbsenceSweep は欠席スイープで更新した件数を記録する。
func (c *Collector) RecordAbsenceSweep(marked int) {
	c.absenceMarked.Add(float64(marked))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はHTTPリクエストのレイテンシを記録する。
func (c *Collector) RecordHTTPLatency(duration time.Duration) {
	c.httpLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordRegistration(string)           {}
func (Nop) RecordCancellation()                 {}
func (Nop) RecordAttendanceAction(string)       {}
func (Nop) RecordSessionEvent(string)           {}
func (Nop) RecordStorageFailure(string, string) {}
func (Nop) RecordAbsenceSweep(int)              {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordHTTPLatency(time.Duration)     {}

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

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
