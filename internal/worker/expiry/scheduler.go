// Package expiry はセッション失効確認のバックグラウンド処理を提供する。
// 一定間隔のティッカーで失効を確認し、失効したセッションを新しいセッションに置き換える。
package expiry

import (
	"context"
	"log/slog"
	"time"
)

// SessionExpirer はセッションの失効確認を行う。
// CheckExpiryは失効していた場合に新しいセッションへ置き換えてtrueを返す。
type SessionExpirer interface {
	CheckExpiry(ctx context.Context, now time.Time) bool
}

// Scheduler はセッション失効確認のスケジューリングを行う。
type Scheduler struct {
	store  SessionExpirer
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(store SessionExpirer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Start は指定間隔のティッカーで失効確認を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("セッション失効確認を開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("セッション失効確認を停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は失効確認を1回実行し、セッションを置き換えたかどうかを返す。
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	expired := s.store.CheckExpiry(ctx, s.now())
	if expired {
		s.logger.Info("失効したセッションを置き換えました")
	}
	return expired
}
