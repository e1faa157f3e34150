package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/eventease/internal/model"
)

// loadJSON はキーの値をJSONとしてデコードする。キーが存在しない場合はfalseを返す。
func loadJSON[T any](ctx context.Context, kv KVStore, key string, dst *T) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// saveJSON は値をJSONにエンコードしてキーに保存する。
func saveJSON(ctx context.Context, kv KVStore, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

// KVSessionRepo はKVStore上のSessionRepository実装。
type KVSessionRepo struct {
	kv KVStore
}

// NewKVSessionRepo はKVSessionRepoを生成する。
func NewKVSessionRepo(kv KVStore) *KVSessionRepo {
	return &KVSessionRepo{kv: kv}
}

// Load は保存済みセッションを取得する。
func (r *KVSessionRepo) Load(ctx context.Context) (*model.UserSession, error) {
	var session model.UserSession
	ok, err := loadJSON(ctx, r.kv, KeyUserSession, &session)
	if err != nil || !ok {
		return nil, err
	}
	if session.SessionID == "" {
		return nil, fmt.Errorf("failed to decode %s: missing session id", KeyUserSession)
	}
	session.Normalize()
	return &session, nil
}

// Save はセッション全体を保存する。
func (r *KVSessionRepo) Save(ctx context.Context, session *model.UserSession) error {
	return saveJSON(ctx, r.kv, KeyUserSession, session)
}

// Delete は保存済みセッションを削除する。
func (r *KVSessionRepo) Delete(ctx context.Context) error {
	return r.kv.Delete(ctx, KeyUserSession)
}

// KVAttendanceRepo はKVStore上のAttendanceRepository実装。
type KVAttendanceRepo struct {
	kv KVStore
}

// NewKVAttendanceRepo はKVAttendanceRepoを生成する。
func NewKVAttendanceRepo(kv KVStore) *KVAttendanceRepo {
	return &KVAttendanceRepo{kv: kv}
}

// LoadAll は全出欠記録を取得する。
func (r *KVAttendanceRepo) LoadAll(ctx context.Context) ([]model.AttendanceRecord, error) {
	records := []model.AttendanceRecord{}
	if _, err := loadJSON(ctx, r.kv, KeyAttendanceRecords, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveAll は全出欠記録を保存する。
func (r *KVAttendanceRepo) SaveAll(ctx context.Context, records []model.AttendanceRecord) error {
	return saveJSON(ctx, r.kv, KeyAttendanceRecords, records)
}

// Clear は保存済みの出欠記録を削除する。
func (r *KVAttendanceRepo) Clear(ctx context.Context) error {
	return r.kv.Delete(ctx, KeyAttendanceRecords)
}

// KVRegistrationRepo はKVStore上のRegistrationRepository実装。
type KVRegistrationRepo struct {
	kv KVStore
}

// NewKVRegistrationRepo はKVRegistrationRepoを生成する。
func NewKVRegistrationRepo(kv KVStore) *KVRegistrationRepo {
	return &KVRegistrationRepo{kv: kv}
}

// LoadAll は全申込を取得する。
func (r *KVRegistrationRepo) LoadAll(ctx context.Context) ([]model.Registration, error) {
	registrations := []model.Registration{}
	if _, err := loadJSON(ctx, r.kv, KeyRegistrations, &registrations); err != nil {
		return nil, err
	}
	return registrations, nil
}

// SaveAll は全申込を保存する。
func (r *KVRegistrationRepo) SaveAll(ctx context.Context, registrations []model.Registration) error {
	return saveJSON(ctx, r.kv, KeyRegistrations, registrations)
}

// KVEventRepo はKVStore上のEventRepository実装。
type KVEventRepo struct {
	kv KVStore
}

// NewKVEventRepo はKVEventRepoを生成する。
func NewKVEventRepo(kv KVStore) *KVEventRepo {
	return &KVEventRepo{kv: kv}
}

// List は全イベントを取得する。
func (r *KVEventRepo) List(ctx context.Context) ([]model.Event, error) {
	events := []model.Event{}
	if _, err := loadJSON(ctx, r.kv, KeyEventCatalog, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// SaveAll はカタログ全体を置き換える。
func (r *KVEventRepo) SaveAll(ctx context.Context, events []model.Event) error {
	return saveJSON(ctx, r.kv, KeyEventCatalog, events)
}

// compile-time interface check
var (
	_ SessionRepository      = (*KVSessionRepo)(nil)
	_ AttendanceRepository   = (*KVAttendanceRepo)(nil)
	_ RegistrationRepository = (*KVRegistrationRepo)(nil)
	_ EventRepository        = (*KVEventRepo)(nil)
)
