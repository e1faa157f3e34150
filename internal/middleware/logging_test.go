package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/model"
)

// recordingMetrics はHTTPメトリクスの記録内容を保持するMetricsCollector。
type recordingMetrics struct {
	metrics.Nop
	statuses  []int
	latencies []time.Duration
}

func (m *recordingMetrics) RecordHTTPStatus(code int) {
	m.statuses = append(m.statuses, code)
}

func (m *recordingMetrics) RecordHTTPLatency(d time.Duration) {
	m.latencies = append(m.latencies, d)
}

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func parseLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newJSONLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseLogEntry(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/api/events" {
		t.Errorf("path = %v, want /api/events", entry["path"])
	}
	if status, ok := entry["status"].(float64); !ok || status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected 'duration_ms' field in log entry")
	}
}

// TestLoggingMiddleware_IncludesIdentityFromInnerSession は
// 内側のセッションミドルウェアで確定した識別情報がログに含まれることを検証する。
func TestLoggingMiddleware_IncludesIdentityFromInnerSession(t *testing.T) {
	var buf bytes.Buffer
	source := &fakeSessionSource{session: model.UserSession{
		SessionID: "sess-1",
		User:      model.UserInfo{UserID: "user-123", IsAuthenticated: true},
	}}

	inner := NewSessionMiddleware(source)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler := NewLoggingMiddleware(newJSONLogger(&buf), nil)(inner)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/session", nil))

	entry := parseLogEntry(t, &buf)
	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", entry["session_id"])
	}
}

// TestLoggingMiddleware_IncludesIdentityFromOuterContext は
// 既にコンテキストにある識別情報も利用されることを検証する。
func TestLoggingMiddleware_IncludesIdentityFromOuterContext(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newJSONLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req = req.WithContext(ContextWithSession(context.Background(), "sess-9", model.UserInfo{UserID: "user-9"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseLogEntry(t, &buf)
	if entry["user_id"] != "user-9" {
		t.Errorf("user_id = %v, want user-9", entry["user_id"])
	}
}

// TestLoggingMiddleware_AnonymousOmitsUserID は匿名ユーザーではuser_idが出力されないことを検証する。
func TestLoggingMiddleware_AnonymousOmitsUserID(t *testing.T) {
	var buf bytes.Buffer
	source := &fakeSessionSource{session: model.UserSession{SessionID: "sess-anon"}}
	handler := NewLoggingMiddleware(newJSONLogger(&buf), nil)(NewSessionMiddleware(source)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/events", nil))

	entry := parseLogEntry(t, &buf)
	if _, ok := entry["user_id"]; ok {
		t.Errorf("匿名ユーザーのログにuser_idを含めるべきではない: %v", entry["user_id"])
	}
	if entry["session_id"] != "sess-anon" {
		t.Errorf("session_id = %v, want sess-anon", entry["session_id"])
	}
}

// TestLoggingMiddleware_CapturesStatusCodeAndLevel はステータスコードとログレベルを検証する。
func TestLoggingMiddleware_CapturesStatusCodeAndLevel(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		level      string
	}{
		{"200 OK", http.StatusOK, "INFO"},
		{"201 Created", http.StatusCreated, "INFO"},
		{"400 Bad Request", http.StatusBadRequest, "WARN"},
		{"404 Not Found", http.StatusNotFound, "WARN"},
		{"500 Internal Server Error", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mc := &recordingMetrics{}
			handler := NewLoggingMiddleware(newJSONLogger(&buf), mc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			entry := parseLogEntry(t, &buf)
			if status := int(entry["status"].(float64)); status != tt.statusCode {
				t.Errorf("status = %d, want %d", status, tt.statusCode)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if len(mc.statuses) != 1 || mc.statuses[0] != tt.statusCode {
				t.Errorf("記録されたステータス = %v, want [%d]", mc.statuses, tt.statusCode)
			}
			if len(mc.latencies) != 1 {
				t.Errorf("レイテンシの記録回数 = %d, want 1", len(mc.latencies))
			}
		})
	}
}

// TestLoggingMiddleware_BodyWriteCapture はレスポンスボディ書き込み後もステータスが記録されることを検証する。
func TestLoggingMiddleware_BodyWriteCapture(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newJSONLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WriteHeaderを呼ばずにWriteすると暗黙的に200が設定される
		w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	entry := parseLogEntry(t, &buf)
	if status := int(entry["status"].(float64)); status != 200 {
		t.Errorf("status = %d, want 200", status)
	}
}
