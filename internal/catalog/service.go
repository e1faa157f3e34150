// Package catalog はイベントカタログの参照機能を提供する。
//
// カタログは読み取り専用のコラボレーターで、申込と出欠の各コンポーネントに
// イベントの定員・価格・名称を供給する。全件をメモリにキャッシュし、
// 保存済みカタログが空の場合はサンプルカタログで初期化する。
package catalog

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/repository"
)

// Service はイベントカタログのサービス層。
type Service struct {
	repo    repository.EventRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu     sync.RWMutex
	loaded bool
	events []model.Event
	byID   map[int]model.Event
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.EventRepository, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:    repo,
		metrics: mc,
		logger:  logger,
	}
}

// Load は保存済みカタログを読み込んでキャッシュする。
// 保存済みカタログが空、または読み込みに失敗した場合はサンプルカタログを使用する。
func (s *Service) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context) {
	s.loaded = true

	events, err := s.repo.List(ctx)
	if err != nil {
		s.metrics.RecordStorageFailure(repository.KeyEventCatalog, "load")
		s.logger.Warn("カタログの読み込みに失敗しました。サンプルカタログを使用します",
			slog.String("error", err.Error()),
		)
		s.setLocked(SampleEvents())
		return
	}

	if len(events) == 0 {
		events = SampleEvents()
		if err := s.repo.SaveAll(ctx, events); err != nil {
			s.metrics.RecordStorageFailure(repository.KeyEventCatalog, "save")
			s.logger.Warn("サンプルカタログの保存に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		s.logger.Info("サンプルカタログで初期化しました", slog.Int("count", len(events)))
	}
	s.setLocked(events)
}

func (s *Service) setLocked(events []model.Event) {
	s.events = slices.Clone(events)
	s.byID = make(map[int]model.Event, len(events))
	for _, e := range events {
		s.byID[e.ID] = e
	}
}

// snapshot は未読み込みなら読み込んでから、キャッシュ済みの全イベントを返す。
func (s *Service) snapshot(ctx context.Context) []model.Event {
	s.mu.RLock()
	if s.loaded {
		events := s.events
		s.mu.RUnlock()
		return events
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loadLocked(ctx)
	}
	return s.events
}

// Replace はカタログ全体を置き換えて保存する。
func (s *Service) Replace(ctx context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SaveAll(ctx, events); err != nil {
		s.metrics.RecordStorageFailure(repository.KeyEventCatalog, "save")
		return err
	}
	s.loaded = true
	s.setLocked(events)
	return nil
}

// GetByID はIDでイベントを取得する。見つからない場合はfalseを返す。
func (s *Service) GetByID(ctx context.Context, id int) (model.Event, bool) {
	s.snapshot(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// GetAll は全イベントを返す。
func (s *Service) GetAll(ctx context.Context) []model.Event {
	return slices.Clone(s.snapshot(ctx))
}

// GetByCategory はカテゴリが一致するイベントを返す。大文字小文字は区別しない。
// カテゴリが空の場合は全イベントを返す。
func (s *Service) GetByCategory(ctx context.Context, category string) []model.Event {
	category = strings.TrimSpace(category)
	if category == "" {
		return s.GetAll(ctx)
	}

	var result []model.Event
	for _, e := range s.snapshot(ctx) {
		if strings.EqualFold(e.Category, category) {
			result = append(result, e)
		}
	}
	return result
}

// Search は検索条件に一致するイベントを返す。
// 名前と場所は部分一致、カテゴリは完全一致（大文字小文字を区別しない）、日付は同じ暦日。
func (s *Service) Search(ctx context.Context, criteria model.SearchCriteria) []model.Event {
	name := strings.ToLower(strings.TrimSpace(criteria.EventName))
	location := strings.ToLower(strings.TrimSpace(criteria.Location))
	category := strings.TrimSpace(criteria.Category)

	var result []model.Event
	for _, e := range s.snapshot(ctx) {
		if name != "" && !strings.Contains(strings.ToLower(e.Name), name) {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(e.Location), location) {
			continue
		}
		if category != "" && !strings.EqualFold(e.Category, category) {
			continue
		}
		if criteria.Date != nil && !sameDate(e, *criteria.Date) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Categories は重複を除いたカテゴリ一覧を昇順で返す。空のカテゴリは含めない。
func (s *Service) Categories(ctx context.Context) []string {
	var categories []string
	for _, e := range s.snapshot(ctx) {
		if e.Category != "" && !slices.Contains(categories, e.Category) {
			categories = append(categories, e.Category)
		}
	}
	slices.Sort(categories)
	return categories
}

// sameDate はイベント日時と指定日時が同じ暦日かどうかを返す。
// 指定日時はイベント日時のタイムゾーンに合わせて比較する。
func sameDate(e model.Event, date time.Time) bool {
	y1, m1, d1 := e.Date.Date()
	y2, m2, d2 := date.In(e.Date.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
