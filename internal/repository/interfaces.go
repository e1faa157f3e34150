// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/eventease/internal/model"
)

// 永続化キー。値はJSONでシリアライズする。
const (
	KeyUserSession       = "eventease_user_session"
	KeyAttendanceRecords = "eventease_attendance_records"
	KeyRegistrations     = "eventease_registrations"
	KeyEventCatalog      = "eventease_event_catalog"
)

// KVStore は永続キーバリューストアのインターフェース。
// 同時書き込みの排他は行わず、最後の書き込みが勝つ。
type KVStore interface {
	// Get は指定キーの値を取得する。存在しない場合はfalseを返す。
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set は指定キーに値を保存する。既存の値は上書きする。
	Set(ctx context.Context, key string, value []byte) error

	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// SessionRepository はユーザーセッションの永続化インターフェース。
type SessionRepository interface {
	// Load は保存済みセッションを取得する。見つからない場合はnilを返す。
	// 破損したデータはエラーとして返す。
	Load(ctx context.Context) (*model.UserSession, error)

	// Save はセッション全体を保存する。
	Save(ctx context.Context, session *model.UserSession) error

	// Delete は保存済みセッションを削除する。
	Delete(ctx context.Context) error
}

// AttendanceRepository は出欠記録の永続化インターフェース。
// 記録は常に全件単位で読み書きする。
type AttendanceRepository interface {
	// LoadAll は全出欠記録を取得する。未保存の場合は空スライスを返す。
	LoadAll(ctx context.Context) ([]model.AttendanceRecord, error)

	// SaveAll は全出欠記録を保存する。
	SaveAll(ctx context.Context, records []model.AttendanceRecord) error

	// Clear は保存済みの出欠記録を削除する。
	Clear(ctx context.Context) error
}

// RegistrationRepository はイベント申込の永続化インターフェース。
type RegistrationRepository interface {
	// LoadAll は全申込を取得する。未保存の場合は空スライスを返す。
	LoadAll(ctx context.Context) ([]model.Registration, error)

	// SaveAll は全申込を保存する。
	SaveAll(ctx context.Context, registrations []model.Registration) error
}

// EventRepository はイベントカタログの永続化インターフェース。
type EventRepository interface {
	// List は全イベントを取得する。未保存の場合は空スライスを返す。
	List(ctx context.Context) ([]model.Event, error)

	// SaveAll はカタログ全体を置き換える。
	SaveAll(ctx context.Context, events []model.Event) error
}
