// Package absence は終了したイベントの未出席者を欠席にする定期ジョブを提供する。
// イベント日時に猶予期間を加えた時刻を過ぎても Registered のままの記録を
// Absent に遷移させる。遷移済みの記録は対象外のため冪等に実行できる。
package absence

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/eventease/internal/metrics"
)

// DefaultGracePeriod はイベント開始から欠席扱いにするまでの猶予期間。
const DefaultGracePeriod = 6 * time.Hour

// AbsenceMarker は終了イベントの一括欠席処理を行う。
type AbsenceMarker interface {
	MarkAbsentForEndedEvents(ctx context.Context, now time.Time, grace time.Duration) int
}

// SweepJob は欠席処理の定期実行ジョブ。
type SweepJob struct {
	tracker     AbsenceMarker
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	now         func() time.Time
	GracePeriod time.Duration // 欠席扱いまでの猶予（デフォルト: 6時間）
}

// NewSweepJob は新しいSweepJobを生成する。
// graceが0以下の場合はDefaultGracePeriodを使用する。
func NewSweepJob(tracker AbsenceMarker, mc metrics.MetricsCollector, logger *slog.Logger, grace time.Duration) *SweepJob {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &SweepJob{
		tracker:     tracker,
		metrics:     mc,
		logger:      logger,
		now:         time.Now,
		GracePeriod: grace,
	}
}

// Run は欠席処理を1回実行し、欠席にした記録数を返す。
func (j *SweepJob) Run(ctx context.Context) int {
	start := time.Now()

	marked := j.tracker.MarkAbsentForEndedEvents(ctx, j.now(), j.GracePeriod)
	j.metrics.RecordAbsenceSweep(marked)

	j.logger.Info("欠席処理ジョブが完了しました",
		slog.Int("marked_count", marked),
		slog.Duration("grace_period", j.GracePeriod),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return marked
}

// Start は起動直後に1回実行し、以降は指定間隔で実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("欠席処理ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("欠席処理ジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
