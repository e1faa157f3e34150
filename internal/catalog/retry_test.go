package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   fetchResult
	}{
		{200, fetchResultOK},
		{404, fetchResultStop},
		{410, fetchResultStop},
		{401, fetchResultStop},
		{403, fetchResultStop},
		{301, fetchResultStop},
		{429, fetchResultRetry},
		{500, fetchResultRetry},
		{503, fetchResultRetry},
	}

	for _, tt := range tests {
		if got := classifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("classifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{20, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := retryDelay(tt.failures); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestWaitContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := waitContext(ctx, time.Hour); err == nil {
		t.Error("キャンセル済みのコンテキストではエラーを返すべき")
	}
}

// noWait は再試行の待機を省略する。
func noWait(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestImporter_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(catalogJSON))
	}))
	defer server.Close()

	im, svc := newTestImporter(&mockURLGuard{})
	var delays []time.Duration
	im.wait = noWait(&delays)

	n, err := im.Import(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if n != 2 || len(svc.GetAll(context.Background())) != 2 {
		t.Errorf("imported = %d", n)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(delays) != 2 || delays[0] != 500*time.Millisecond || delays[1] != time.Second {
		t.Errorf("delays = %v, want [500ms 1s]", delays)
	}
}

func TestImporter_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	im, _ := newTestImporter(&mockURLGuard{})
	var delays []time.Duration
	im.wait = noWait(&delays)

	if _, err := im.Import(context.Background(), server.URL); err == nil {
		t.Fatal("再試行が尽きた場合はエラーを返すべき")
	}
	if calls.Load() != maxFetchAttempts {
		t.Errorf("calls = %d, want %d", calls.Load(), maxFetchAttempts)
	}
}

func TestImporter_DoesNotRetryPermanentStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	im, _ := newTestImporter(&mockURLGuard{})
	var delays []time.Duration
	im.wait = noWait(&delays)

	if _, err := im.Import(context.Background(), server.URL); err == nil {
		t.Fatal("410はエラーを返すべき")
	}
	if calls.Load() != 1 || len(delays) != 0 {
		t.Errorf("calls = %d, delays = %v; 410は再試行しないべき", calls.Load(), delays)
	}
}
