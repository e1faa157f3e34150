package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/security"
)

const (
	// maxCatalogSize は取り込むカタログJSONの最大サイズ（5MB）。
	maxCatalogSize = 5 * 1024 * 1024
	// fetchTimeout はURLからの取得タイムアウト。
	fetchTimeout = 10 * time.Second
)

// URLGuard はカタログ取得先URLの検証インターフェース。
// security.SSRFGuardを抽象化してテストで差し替える。
type URLGuard interface {
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateURL(rawURL string) (*url.URL, error)
}

// Importer はJSON形式のイベント一覧をファイルまたはURLから取り込む。
type Importer struct {
	catalog     *Service
	guard       URLGuard
	text        security.TextSanitizer
	description security.HTMLSanitizer
	logger      *slog.Logger
	wait        func(ctx context.Context, d time.Duration) error
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(
	catalog *Service,
	guard URLGuard,
	text security.TextSanitizer,
	description security.HTMLSanitizer,
	logger *slog.Logger,
) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		catalog:     catalog,
		guard:       guard,
		text:        text,
		description: description,
		logger:      logger,
		wait:        waitContext,
	}
}

// Import はsourceからカタログを読み込み、保存済みカタログを置き換える。
// sourceがhttp(s)で始まる場合はURLとして取得し、それ以外はファイルパスとして読む。
// 取り込んだイベント数を返す。
func (im *Importer) Import(ctx context.Context, source string) (int, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, fmt.Errorf("catalog source is empty")
	}

	var (
		raw []byte
		err error
	)
	if isURL(source) {
		raw, err = im.fetch(ctx, source)
	} else {
		raw, err = readFile(source)
	}
	if err != nil {
		return 0, err
	}

	events, err := im.decode(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to decode catalog from %s: %w", source, err)
	}

	if err := im.catalog.Replace(ctx, events); err != nil {
		return 0, fmt.Errorf("failed to save catalog: %w", err)
	}

	im.logger.Info("カタログを取り込みました",
		slog.String("source", source),
		slog.Int("count", len(events)),
	)
	return len(events), nil
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxCatalogSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	if len(raw) > maxCatalogSize {
		return nil, fmt.Errorf("catalog file exceeds %d bytes", maxCatalogSize)
	}
	return raw, nil
}

// fetch はSSRF検証済みのクライアントでカタログを取得する。
// 通信エラーと429/5xxは指数バックオフで最大maxFetchAttempts回まで試行する。
func (im *Importer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := im.guard.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("catalog URL rejected: %w", err)
	}

	client := im.guard.NewSafeClient(fetchTimeout)
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt - 1)
			im.logger.Warn("カタログ取得を再試行します",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			if err := im.wait(ctx, delay); err != nil {
				return nil, fmt.Errorf("failed to fetch catalog: %w", err)
			}
		}

		raw, retry, err := im.fetchOnce(ctx, client, rawURL)
		if err == nil {
			return raw, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// fetchOnce はカタログを1回取得する。再試行すべき失敗の場合はretryにtrueを返す。
func (im *Importer) fetchOnce(ctx context.Context, client *http.Client, rawURL string) (raw []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid catalog URL: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "EventEase/1.0 Catalog Importer")

	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	switch classifyHTTPStatus(resp.StatusCode) {
	case fetchResultRetry:
		return nil, true, fmt.Errorf("failed to fetch catalog: unexpected status %d", resp.StatusCode)
	case fetchResultStop:
		return nil, false, fmt.Errorf("failed to fetch catalog: unexpected status %d", resp.StatusCode)
	}

	raw, err = io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read catalog response: %w", err)
	}
	if len(raw) > maxCatalogSize {
		return nil, false, fmt.Errorf("catalog response exceeds %d bytes", maxCatalogSize)
	}
	return raw, false, nil
}

// decode はイベント一覧をデコードし、検証と無害化を行う。
func (im *Importer) decode(raw []byte) ([]model.Event, error) {
	var events []model.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("catalog contains no events")
	}

	seen := make(map[int]bool, len(events))
	for i := range events {
		e := &events[i]
		if e.ID <= 0 {
			return nil, fmt.Errorf("event at index %d has invalid id %d", i, e.ID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate event id %d", e.ID)
		}
		seen[e.ID] = true
		if e.Capacity < 0 {
			return nil, fmt.Errorf("event %d has negative capacity", e.ID)
		}
		if e.Price < 0 {
			return nil, fmt.Errorf("event %d has negative price", e.ID)
		}

		e.Name = im.text.Sanitize(e.Name)
		e.Location = im.text.Sanitize(e.Location)
		e.Category = im.text.Sanitize(e.Category)
		e.Organizer = im.text.Sanitize(e.Organizer)
		e.Description = im.description.SanitizeHTML(e.Description)
	}
	return events, nil
}

// compile-time interface check
var _ URLGuard = (security.SSRFGuard)(nil)
