// Package attendance は(イベント, ユーザー)ごとの出欠状態を管理する。
//
// 状態遷移:
//
//	Registered --CheckIn--> Present --CheckOut--> CheckedOut
//	Registered --MarkAbsent--> Absent
//	Registered/Absent/CheckedOut --Cancel--> Cancelled
//
// 変更のたびに全記録を保存し、保存後にChangedへ通知する。
// 保存に失敗してもメモリ上の記録で処理を継続する。
package attendance

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/notify"
	"github.com/hitoshi/eventease/internal/repository"
	"github.com/hitoshi/eventease/internal/security"
)

// IdentityProvider は操作者のユーザー識別情報を提供する。
// session.Storeが実装する。
type IdentityProvider interface {
	CurrentUser(ctx context.Context) model.UserInfo
}

// EventLookup はイベント情報の参照インターフェース。
// catalog.Serviceが実装する。
type EventLookup interface {
	GetByID(ctx context.Context, id int) (model.Event, bool)
}

// Change は出欠変更通知の内容。
type Change struct {
	Record model.AttendanceRecord
	Action string
}

// Config はTrackerの動作パラメータ。
type Config struct {
	// Now は現在時刻の取得関数。
	Now func() time.Time
	// NewID は出欠記録IDの生成関数。
	NewID func() string
}

// DefaultConfig はデフォルトのTracker設定を返す。
func DefaultConfig() Config {
	return Config{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Tracker は出欠記録を排他的に所有する。
type Tracker struct {
	mu          sync.Mutex
	repo        repository.AttendanceRepository
	identity    IdentityProvider
	events      EventLookup
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	config      Config
	records     []model.AttendanceRecord
	initialized bool

	// Changed は出欠記録が変更されるたびに発行される。
	Changed *notify.Bus[Change]
}

// NewTracker はTrackerの新しいインスタンスを生成する。
func NewTracker(
	repo repository.AttendanceRepository,
	identity IdentityProvider,
	events EventLookup,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	defaults := DefaultConfig()
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.NewID == nil {
		config.NewID = defaults.NewID
	}

	return &Tracker{
		repo:      repo,
		identity:  identity,
		events:    events,
		sanitizer: sanitizer,
		metrics:   mc,
		logger:    logger,
		config:    config,
		Changed:   notify.NewBus[Change](logger),
	}
}

// Initialize は保存済みの出欠記録を読み込む。
// 読み込みに失敗した場合は空の状態で開始する。
func (t *Tracker) Initialize(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked(ctx)
}

func (t *Tracker) loadLocked(ctx context.Context) {
	t.initialized = true
	records, err := t.repo.LoadAll(ctx)
	if err != nil {
		t.storageFailed("load", err)
		records = nil
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}
	t.records = records
	t.logger.Info("出欠記録を読み込みました", slog.Int("count", len(records)))
}

func (t *Tracker) ensureLoadedLocked(ctx context.Context) {
	if !t.initialized {
		t.loadLocked(ctx)
	}
}

// persistLocked は全記録を保存する。失敗はログとメトリクスに記録して握りつぶす。
func (t *Tracker) persistLocked(ctx context.Context) {
	if err := t.repo.SaveAll(ctx, t.records); err != nil {
		t.storageFailed("save", err)
	}
}

func (t *Tracker) storageFailed(op string, err error) {
	t.metrics.RecordStorageFailure(repository.KeyAttendanceRecords, op)
	t.logger.Warn("出欠記録の永続化に失敗しました。メモリ上の状態で処理を継続します",
		slog.String("op", op),
		slog.String("error", model.NewStorageError(repository.KeyAttendanceRecords, err).Error()),
	)
}

// resolveUser はuserIDが空の場合に現在のセッションのユーザーIDを返す。
func (t *Tracker) resolveUser(ctx context.Context, userID string) string {
	if userID != "" {
		return userID
	}
	return t.identity.CurrentUser(ctx).UserID
}

// indexLocked は(eventID, userID)の記録の位置を返す。存在しない場合は-1。
func (t *Tracker) indexLocked(eventID int, userID string) int {
	for i := range t.records {
		if t.records[i].EventID == eventID && t.records[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (t *Tracker) cleanNotes(notes string) string {
	if t.sanitizer == nil {
		return strings.TrimSpace(notes)
	}
	return t.sanitizer.Sanitize(notes)
}

// commitLocked は保存とメトリクス記録を行い、ロック解放後に発行する通知を返す。
func (t *Tracker) commitLocked(ctx context.Context, changes []Change) func() {
	t.persistLocked(ctx)
	for _, c := range changes {
		t.metrics.RecordAttendanceAction(c.Action)
		t.logger.Info("出欠状態を更新しました",
			slog.Int("event_id", c.Record.EventID),
			slog.String("user_id", c.Record.UserID),
			slog.String("action", c.Action),
			slog.String("status", string(c.Record.Status)),
		)
	}
	return func() {
		for _, c := range changes {
			t.Changed.Publish(c)
		}
	}
}

// registerLocked は現在のユーザーの出欠記録を作成する。
// 取消済みの記録がある場合は同じ記録を再利用してRegisteredに戻す。
func (t *Tracker) registerLocked(eventID int, user model.UserInfo, notes string, now time.Time) (model.AttendanceRecord, error) {
	if i := t.indexLocked(eventID, user.UserID); i >= 0 {
		rec := &t.records[i]
		if rec.Status != model.AttendanceStatusCancelled {
			return *rec, model.NewAlreadyRegisteredError(eventID)
		}
		rec.UserName = user.Username
		rec.UserEmail = user.Email
		rec.Status = model.AttendanceStatusRegistered
		rec.RegisteredAt = now
		rec.CheckedInAt = nil
		rec.CheckedOutAt = nil
		if notes != "" {
			rec.Notes = notes
		}
		return *rec, nil
	}

	rec := model.AttendanceRecord{
		ID:           t.config.NewID(),
		EventID:      eventID,
		UserID:       user.UserID,
		UserName:     user.Username,
		UserEmail:    user.Email,
		Status:       model.AttendanceStatusRegistered,
		RegisteredAt: now,
		Notes:        notes,
	}
	t.records = append(t.records, rec)
	return rec, nil
}

func validateEventID(eventID int) error {
	if eventID <= 0 {
		return model.NewValidationError([]string{"Event id must be a positive number."})
	}
	return nil
}

// Register は現在のユーザーをイベントに登録する。
func (t *Tracker) Register(ctx context.Context, eventID int, notes string) (model.AttendanceRecord, error) {
	if err := validateEventID(eventID); err != nil {
		return model.AttendanceRecord{}, err
	}
	user := t.identity.CurrentUser(ctx)
	notes = t.cleanNotes(notes)

	t.mu.Lock()
	t.ensureLoadedLocked(ctx)
	rec, err := t.registerLocked(eventID, user, notes, t.config.Now())
	if err != nil {
		t.mu.Unlock()
		return rec, err
	}
	publish := t.commitLocked(ctx, []Change{{Record: rec, Action: model.AttendanceActionRegistered}})
	t.mu.Unlock()

	publish()
	return rec, nil
}

// CheckIn は現在のユーザーをチェックインさせる。
// 記録がなければ先に登録し、Present以外の状態からPresentへ遷移する。
func (t *Tracker) CheckIn(ctx context.Context, eventID int, notes string) (model.AttendanceRecord, error) {
	if err := validateEventID(eventID); err != nil {
		return model.AttendanceRecord{}, err
	}
	return t.checkIn(ctx, eventID, t.identity.CurrentUser(ctx), notes, true)
}

// CheckInUser はチケットの持ち主を受付でチェックインさせる（管理者操作）。
// 自動登録は行わず、取消されていない記録がある場合のみ成功する。
func (t *Tracker) CheckInUser(ctx context.Context, eventID int, userID, notes string) (model.AttendanceRecord, error) {
	if err := validateEventID(eventID); err != nil {
		return model.AttendanceRecord{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.AttendanceRecord{}, model.NewValidationError([]string{"User ID is required."})
	}
	return t.checkIn(ctx, eventID, model.UserInfo{UserID: userID}, notes, false)
}

func (t *Tracker) checkIn(ctx context.Context, eventID int, user model.UserInfo, notes string, autoRegister bool) (model.AttendanceRecord, error) {
	notes = t.cleanNotes(notes)
	now := t.config.Now()

	t.mu.Lock()
	t.ensureLoadedLocked(ctx)

	var changes []Change
	i := t.indexLocked(eventID, user.UserID)
	if !autoRegister && (i < 0 || t.records[i].Status == model.AttendanceStatusCancelled) {
		t.mu.Unlock()
		return model.AttendanceRecord{}, model.NewAttendanceNotFoundError(eventID)
	}
	if i < 0 {
		rec, err := t.registerLocked(eventID, user, notes, now)
		if err != nil {
			t.mu.Unlock()
			return rec, err
		}
		changes = append(changes, Change{Record: rec, Action: model.AttendanceActionRegistered})
		i = t.indexLocked(eventID, user.UserID)
	}

	rec := &t.records[i]
	if rec.Status == model.AttendanceStatusPresent {
		current := *rec
		t.mu.Unlock()
		return current, model.NewInvalidTransitionError("check in", current.Status)
	}

	checkedIn := now
	rec.Status = model.AttendanceStatusPresent
	rec.CheckedInAt = &checkedIn
	rec.CheckedOutAt = nil
	if notes != "" {
		rec.Notes = notes
	}
	result := *rec
	changes = append(changes, Change{Record: result, Action: model.AttendanceActionCheckedIn})
	publish := t.commitLocked(ctx, changes)
	t.mu.Unlock()

	publish()
	return result, nil
}

// CheckOut は現在のユーザーをチェックアウトさせる。Presentの場合のみ成功する。
func (t *Tracker) CheckOut(ctx context.Context, eventID int, notes string) (model.AttendanceRecord, error) {
	user := t.identity.CurrentUser(ctx)
	notes = t.cleanNotes(notes)

	t.mu.Lock()
	t.ensureLoadedLocked(ctx)

	i := t.indexLocked(eventID, user.UserID)
	if i < 0 {
		t.mu.Unlock()
		return model.AttendanceRecord{}, model.NewAttendanceNotFoundError(eventID)
	}
	rec := &t.records[i]
	if rec.Status != model.AttendanceStatusPresent {
		current := *rec
		t.mu.Unlock()
		return current, model.NewInvalidTransitionError("check out", current.Status)
	}

	checkedOut := t.config.Now()
	rec.Status = model.AttendanceStatusCheckedOut
	rec.CheckedOutAt = &checkedOut
	if notes != "" {
		rec.Notes = notes
	}
	result := *rec
	publish := t.commitLocked(ctx, []Change{{Record: result, Action: model.AttendanceActionCheckedOut}})
	t.mu.Unlock()

	publish()
	return result, nil
}

// CancelRegistration は現在のユーザーの登録を取り消す。
// チェックイン中（Present）の場合と取消済みの場合は失敗する。
func (t *Tracker) CancelRegistration(ctx context.Context, eventID int) (model.AttendanceRecord, error) {
	user := t.identity.CurrentUser(ctx)

	t.mu.Lock()
	t.ensureLoadedLocked(ctx)

	i := t.indexLocked(eventID, user.UserID)
	if i < 0 {
		t.mu.Unlock()
		return model.AttendanceRecord{}, model.NewAttendanceNotFoundError(eventID)
	}
	rec := &t.records[i]
	switch rec.Status {
	case model.AttendanceStatusPresent:
		current := *rec
		t.mu.Unlock()
		return current, model.NewInvalidTransitionError("cancel", current.Status)
	case model.AttendanceStatusCancelled:
		current := *rec
		t.mu.Unlock()
		return current, model.NewAlreadyCancelledError()
	}

	rec.Status = model.AttendanceStatusCancelled
	result := *rec
	publish := t.commitLocked(ctx, []Change{{Record: result, Action: model.AttendanceActionCancelled}})
	t.mu.Unlock()

	publish()
	return result, nil
}

// MarkAbsent は指定ユーザーを欠席扱いにする（管理者操作）。Registeredの場合のみ成功する。
// userIDが空の場合は現在のセッションのユーザーを対象にする。
func (t *Tracker) MarkAbsent(ctx context.Context, eventID int, userID string) (model.AttendanceRecord, error) {
	userID = t.resolveUser(ctx, userID)

	t.mu.Lock()
	t.ensureLoadedLocked(ctx)

	i := t.indexLocked(eventID, userID)
	if i < 0 {
		t.mu.Unlock()
		return model.AttendanceRecord{}, model.NewAttendanceNotFoundError(eventID)
	}
	rec := &t.records[i]
	if rec.Status != model.AttendanceStatusRegistered {
		current := *rec
		t.mu.Unlock()
		return current, model.NewInvalidTransitionError("mark absent", current.Status)
	}

	rec.Status = model.AttendanceStatusAbsent
	result := *rec
	publish := t.commitLocked(ctx, []Change{{Record: result, Action: model.AttendanceActionAbsent}})
	t.mu.Unlock()

	publish()
	return result, nil
}

// MarkAbsentForEndedEvents は開催日時からgraceを過ぎたイベントについて、
// Registeredのままの記録をすべて欠席扱いにし、更新件数を返す。
// カタログに存在しないイベントの記録は対象外。
func (t *Tracker) MarkAbsentForEndedEvents(ctx context.Context, now time.Time, grace time.Duration) int {
	ended := make(map[int]bool)

	t.mu.Lock()
	t.ensureLoadedLocked(ctx)

	var changes []Change
	for i := range t.records {
		rec := &t.records[i]
		if rec.Status != model.AttendanceStatusRegistered {
			continue
		}
		isEnded, checked := ended[rec.EventID]
		if !checked {
			isEnded = t.eventEnded(ctx, rec.EventID, now, grace)
			ended[rec.EventID] = isEnded
		}
		if !isEnded {
			continue
		}
		rec.Status = model.AttendanceStatusAbsent
		changes = append(changes, Change{Record: *rec, Action: model.AttendanceActionAbsent})
	}

	if len(changes) == 0 {
		t.mu.Unlock()
		return 0
	}
	publish := t.commitLocked(ctx, changes)
	t.mu.Unlock()

	publish()
	return len(changes)
}

func (t *Tracker) eventEnded(ctx context.Context, eventID int, now time.Time, grace time.Duration) bool {
	if t.events == nil {
		return false
	}
	e, ok := t.events.GetByID(ctx, eventID)
	if !ok || e.Date.IsZero() {
		return false
	}
	return !now.Before(e.Date.Add(grace))
}

// ClearAttendanceData は全出欠記録を削除する（管理者操作）。
func (t *Tracker) ClearAttendanceData(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := len(t.records)
	t.records = []model.AttendanceRecord{}
	t.initialized = true
	if err := t.repo.Clear(ctx); err != nil {
		t.storageFailed("delete", err)
	}
	t.logger.Info("出欠記録を全て削除しました", slog.Int("count", count))
}
