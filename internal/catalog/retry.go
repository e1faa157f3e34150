package catalog

import (
	"context"
	"time"
)

// fetchResult はHTTPステータスコードに基づくカタログ取得結果の分類。
type fetchResult int

const (
	// fetchResultOK は取得成功（200）。
	fetchResultOK fetchResult = iota
	// fetchResultStop は再試行しても成功しないステータス（404/410/401/403など）。
	fetchResultStop
	// fetchResultRetry は時間をおいて再試行するステータス（429/5xx）。
	fetchResultRetry
)

const (
	// maxFetchAttempts はURL取得の最大試行回数。
	maxFetchAttempts = 3
	// initialRetryDelay は指数バックオフの初回遅延。
	initialRetryDelay = 500 * time.Millisecond
	// maxRetryDelay は指数バックオフの最大遅延。
	maxRetryDelay = 5 * time.Second
)

// classifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func classifyHTTPStatus(statusCode int) fetchResult {
	switch {
	case statusCode == 200:
		return fetchResultOK
	case statusCode == 429:
		return fetchResultRetry
	case statusCode >= 500:
		return fetchResultRetry
	default:
		return fetchResultStop
	}
}

// retryDelay は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大5秒。
func retryDelay(failures int) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// waitContext はdだけ待機する。待機中にctxがキャンセルされた場合はそのエラーを返す。
func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
