// Package session はクライアント常駐のユーザーセッションを管理する。
//
// Storeはアクティブなセッションを1つだけ保持し、変更のたびに
// セッション全体を永続化してから変更通知を発行する。
// 最終アクティビティからTimeout以上経過したセッションは
// 次のアクセス時または定期チェック時に丸ごと新しいセッションへ置き換える。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/notify"
	"github.com/hitoshi/eventease/internal/repository"
)

const (
	// Timeout は無操作でセッションが失効するまでの時間。
	Timeout = 30 * time.Minute
	// ExpiryCheckInterval は定期失効チェックの間隔。
	ExpiryCheckInterval = time.Minute
)

// 変更通知の種別。
const (
	ChangeSessionStarted     = "SessionStarted"
	ChangeSessionCleared     = "SessionCleared"
	ChangeUserLogin          = "UserLogin"
	ChangeUserLogout         = "UserLogout"
	ChangePreferencesUpdated = "PreferencesUpdated"
	ChangePageVisit          = "PageVisit"
	ChangeEventViewed        = "EventViewed"
	ChangeBookmarkToggled    = "BookmarkToggled"
	ChangeLastSearchUpdated  = "LastSearchUpdated"
	ChangeCategorySelected   = "CategorySelected"
	ChangeCurrentEvent       = "CurrentEventChanged"
	ChangeUnsavedChanges     = "UnsavedChangesUpdated"

	changePreferencePrefix = "Preference_"
	changeStatePrefix      = "State_"
)

// Change はセッション変更通知の内容。
// Sessionは変更適用後のスナップショット。
type Change struct {
	Session  model.UserSession
	Kind     string
	OldValue any
	NewValue any
}

// Config はStoreの動作パラメータ。
type Config struct {
	// Timeout は無操作での失効時間（デフォルト: 30分）。
	Timeout time.Duration
	// Now は現在時刻の取得関数。テストで固定時刻を注入する。
	Now func() time.Time
	// NewID はセッションIDの生成関数。
	NewID func() string
}

// DefaultConfig はデフォルトのStore設定を返す。
func DefaultConfig() Config {
	return Config{
		Timeout: Timeout,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   uuid.NewString,
	}
}

// Store はアクティブなUserSessionを排他的に所有する。
type Store struct {
	mu          sync.Mutex
	repo        repository.SessionRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	config      Config
	current     model.UserSession
	initialized bool

	// Changed はセッション変更のたびに発行される。
	Changed *notify.Bus[Change]
	// Expired は失効したセッションを置き換える直前に発行される。
	Expired *notify.Bus[model.UserSession]
	// Started は新しいセッションが開始されたときに発行される。
	Started *notify.Bus[model.UserSession]
	// Authenticated はログイン成功時に発行される。
	Authenticated *notify.Bus[model.UserSession]
}

// NewStore はStoreの新しいインスタンスを生成する。
// Initializeを呼ぶまでセッションは読み込まれないが、
// 未初期化のまま操作した場合は最初の操作で初期化する。
func NewStore(
	repo repository.SessionRepository,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.NewID == nil {
		config.NewID = defaults.NewID
	}

	return &Store{
		repo:          repo,
		metrics:       mc,
		logger:        logger,
		config:        config,
		Changed:       notify.NewBus[Change](logger),
		Expired:       notify.NewBus[model.UserSession](logger),
		Started:       notify.NewBus[model.UserSession](logger),
		Authenticated: notify.NewBus[model.UserSession](logger),
	}
}

// pending はロック解放後に発行する通知の列。
type pending []func()

func (p *pending) add(f func()) {
	*p = append(*p, f)
}

func (p pending) fire() {
	for _, f := range p {
		f()
	}
}

// Initialize は保存済みセッションを読み込む。
// 有効なセッションがあれば最終アクティビティを更新して採用し、
// 存在しない・破損している・失効している場合は新しいセッションを開始する。
func (s *Store) Initialize(ctx context.Context) model.UserSession {
	var events pending

	s.mu.Lock()
	s.loadLocked(ctx, &events)
	snapshot := s.current.Clone()
	s.mu.Unlock()

	events.fire()
	return snapshot
}

// loadLocked はs.muを保持した状態で呼ぶ。
func (s *Store) loadLocked(ctx context.Context, events *pending) {
	s.initialized = true
	now := s.config.Now()

	loaded, err := s.repo.Load(ctx)
	if err != nil {
		s.storageFailed(repository.KeyUserSession, "load", err)
	}

	if loaded != nil && !loaded.IsExpired(now, s.config.Timeout) {
		s.current = *loaded
		s.current.UpdateActivity(now)
		s.persistLocked(ctx)
		s.logger.Info("保存済みセッションを復元しました",
			slog.String("session_id", s.current.SessionID),
		)
		return
	}

	if loaded != nil {
		s.logger.Info("保存済みセッションが失効していたため破棄しました",
			slog.String("session_id", loaded.SessionID),
		)
	}
	s.startNewLocked(ctx, now, events)
}

// startNewLocked は新しいセッションに置き換えて永続化する。s.muを保持した状態で呼ぶ。
func (s *Store) startNewLocked(ctx context.Context, now time.Time, events *pending) {
	old := s.current.Clone()
	s.current = model.NewUserSession(s.config.NewID(), now)
	s.persistLocked(ctx)
	s.metrics.RecordSessionEvent("started")

	s.logger.Info("新しいセッションを開始しました",
		slog.String("session_id", s.current.SessionID),
	)

	started := s.current.Clone()
	events.add(func() {
		s.Started.Publish(started)
		s.Changed.Publish(Change{
			Session:  started,
			Kind:     ChangeSessionStarted,
			OldValue: old,
			NewValue: started,
		})
	})
}

// expireLocked は現在のセッションを失効させて新しいセッションを開始する。s.muを保持した状態で呼ぶ。
func (s *Store) expireLocked(ctx context.Context, now time.Time, events *pending) {
	expired := s.current.Clone()
	s.metrics.RecordSessionEvent("expired")
	s.logger.Info("セッションが失効しました",
		slog.String("session_id", expired.SessionID),
		slog.Time("last_activity", expired.LastActivity),
	)

	events.add(func() { s.Expired.Publish(expired) })
	s.startNewLocked(ctx, now, events)
}

// ensureActiveLocked は未初期化なら初期化し、失効していれば置き換える。s.muを保持した状態で呼ぶ。
func (s *Store) ensureActiveLocked(ctx context.Context, events *pending) {
	if !s.initialized {
		s.loadLocked(ctx, events)
		return
	}
	now := s.config.Now()
	if s.current.IsExpired(now, s.config.Timeout) {
		s.expireLocked(ctx, now, events)
	}
}

// persistLocked はセッション全体を保存する。失敗はログとメトリクスに記録して握りつぶす。
func (s *Store) persistLocked(ctx context.Context) {
	snapshot := s.current.Clone()
	if err := s.repo.Save(ctx, &snapshot); err != nil {
		s.storageFailed(repository.KeyUserSession, "save", err)
	}
}

func (s *Store) storageFailed(key, op string, err error) {
	s.metrics.RecordStorageFailure(key, op)
	s.logger.Warn("セッションの永続化に失敗しました。メモリ上の状態で処理を継続します",
		slog.String("op", op),
		slog.String("error", model.NewStorageError(key, err).Error()),
	)
}

// Current は現在のセッションのスナップショットを返す。
// 失効している場合は新しいセッションに置き換えてから返す。
// 呼び出し元はスナップショットを保持し続けず、必要なたびに再取得すること。
func (s *Store) Current(ctx context.Context) model.UserSession {
	var events pending

	s.mu.Lock()
	s.ensureActiveLocked(ctx, &events)
	snapshot := s.current.Clone()
	s.mu.Unlock()

	events.fire()
	return snapshot
}

// CurrentUser は現在のセッションのユーザー識別情報を返す。
func (s *Store) CurrentUser(ctx context.Context) model.UserInfo {
	return s.Current(ctx).User
}

// IsAuthenticated は現在のユーザーが認証済みかどうかを返す。
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	return s.Current(ctx).User.IsAuthenticated
}

// CheckExpiry はnow時点で失効していればセッションを置き換えてtrueを返す。
// タイマーからもテストからも直接呼び出せる。
func (s *Store) CheckExpiry(ctx context.Context, now time.Time) bool {
	var events pending

	s.mu.Lock()
	expired := s.initialized && s.current.IsExpired(now, s.config.Timeout)
	if expired {
		s.expireLocked(ctx, now, &events)
	}
	s.mu.Unlock()

	events.fire()
	return expired
}

// StartNewSession は現在のセッションを破棄して新しいセッションを開始する。
func (s *Store) StartNewSession(ctx context.Context) model.UserSession {
	var events pending

	s.mu.Lock()
	s.initialized = true
	s.startNewLocked(ctx, s.config.Now(), &events)
	snapshot := s.current.Clone()
	s.mu.Unlock()

	events.fire()
	return snapshot
}

// ClearSession は保存済みセッションを削除し、新しいセッションを開始する。
func (s *Store) ClearSession(ctx context.Context) model.UserSession {
	var events pending

	s.mu.Lock()
	old := s.current.Clone()
	if err := s.repo.Delete(ctx); err != nil {
		s.storageFailed(repository.KeyUserSession, "delete", err)
	}
	s.initialized = true
	s.startNewLocked(ctx, s.config.Now(), &events)
	s.metrics.RecordSessionEvent("cleared")
	snapshot := s.current.Clone()
	s.mu.Unlock()

	events.add(func() {
		s.Changed.Publish(Change{
			Session:  snapshot,
			Kind:     ChangeSessionCleared,
			OldValue: old,
			NewValue: snapshot,
		})
	})
	events.fire()
	return snapshot
}

// UpdateActivity は最終アクティビティ時刻を更新して保存する。変更通知は発行しない。
func (s *Store) UpdateActivity(ctx context.Context) model.UserSession {
	var events pending

	s.mu.Lock()
	s.ensureActiveLocked(ctx, &events)
	s.current.UpdateActivity(s.config.Now())
	s.persistLocked(ctx)
	snapshot := s.current.Clone()
	s.mu.Unlock()

	events.fire()
	return snapshot
}

// mutation はセッションへの1回の変更を表す。
// kindが空の場合は変更なしとして扱い、保存も通知も行わない。
type mutation func(sess *model.UserSession, now time.Time) (kind string, oldValue, newValue any, err error)

// mutate は失効確認、変更適用、アクティビティ更新、保存、通知を順に行う。
// beforeChangedはChanged通知の直前に保存後のスナップショットで呼ばれる。
func (s *Store) mutate(ctx context.Context, fn mutation, beforeChanged ...func(model.UserSession)) (model.UserSession, error) {
	var events pending

	s.mu.Lock()
	s.ensureActiveLocked(ctx, &events)

	now := s.config.Now()
	kind, oldValue, newValue, err := fn(&s.current, now)
	if err != nil || kind == "" {
		snapshot := s.current.Clone()
		s.mu.Unlock()
		events.fire()
		return snapshot, err
	}

	s.current.UpdateActivity(now)
	s.persistLocked(ctx)
	snapshot := s.current.Clone()
	s.mu.Unlock()

	events.add(func() {
		for _, f := range beforeChanged {
			f(snapshot)
		}
		s.Changed.Publish(Change{
			Session:  snapshot,
			Kind:     kind,
			OldValue: oldValue,
			NewValue: newValue,
		})
	})
	events.fire()
	return snapshot, nil
}
