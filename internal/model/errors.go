// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, registration, attendance, session, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeEventNotFound         = "EVENT_NOT_FOUND"
	ErrCodeRegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	ErrCodeAttendanceNotFound    = "ATTENDANCE_NOT_FOUND"
	ErrCodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	ErrCodeDuplicateRegistration = "DUPLICATE_REGISTRATION"
	ErrCodeAlreadyCancelled      = "ALREADY_CANCELLED"
	ErrCodeInvalidTransition     = "INVALID_TRANSITION"
	ErrCodeStorageFailed         = "STORAGE_FAILED"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
)

// NewValidationError はフィールド検証エラーを生成する。
// 複数のフィールドエラーは1つのメッセージに連結する。
func NewValidationError(fieldErrors []string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  strings.Join(fieldErrors, " "),
		Category: "validation",
		Action:   "Correct the highlighted fields and submit again.",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID int) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  "Event not found.",
		Category: "registration",
		Action:   fmt.Sprintf("Check the event id (%d) and try again.", eventID),
	}
}

// NewRegistrationNotFoundError は申込未検出エラーを生成する。
func NewRegistrationNotFoundError(registrationID int) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationNotFound,
		Message:  "Registration not found.",
		Category: "registration",
		Action:   fmt.Sprintf("Check the registration id (%d).", registrationID),
	}
}

// NewAttendanceNotFoundError は出欠記録未検出エラーを生成する。
func NewAttendanceNotFoundError(eventID int) *APIError {
	return &APIError{
		Code:     ErrCodeAttendanceNotFound,
		Message:  "You are not registered for this event.",
		Category: "attendance",
		Action:   fmt.Sprintf("Register for event %d first.", eventID),
	}
}

// NewCapacityExceededError は残席不足エラーを生成する。
// 残席が0の場合はウェイトリスト扱いになるため、このエラーは残席が1以上のときのみ使う。
func NewCapacityExceededError(available int) *APIError {
	return &APIError{
		Code:     ErrCodeCapacityExceeded,
		Message:  fmt.Sprintf("Only %d seats available. Please reduce the number of attendees.", available),
		Category: "registration",
		Action:   fmt.Sprintf("Reduce the number of attendees to %d or fewer.", available),
	}
}

// NewDuplicateRegistrationError は同一イベント・同一メールアドレスの重複申込エラーを生成する。
func NewDuplicateRegistrationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRegistration,
		Message:  "A registration with this email address already exists for this event.",
		Category: "registration",
		Action:   "Use a different email address or cancel the existing registration.",
	}
}

// NewAlreadyCancelledError は取消済みの申込を再度取り消そうとした場合のエラーを生成する。
func NewAlreadyCancelledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyCancelled,
		Message:  "Registration is already cancelled.",
		Category: "registration",
		Action:   "No further action is needed.",
	}
}

// NewAlreadyRegisteredError は取消されていない出欠記録が既にある場合のエラーを生成する。
func NewAlreadyRegisteredError(eventID int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  "You are already registered for this event.",
		Category: "attendance",
		Action:   fmt.Sprintf("Check your attendance status for event %d.", eventID),
	}
}

// NewInvalidTransitionError は出欠状態遷移の前提条件違反エラーを生成する。
func NewInvalidTransitionError(action string, current AttendanceStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("Cannot %s while attendance status is %s.", action, current),
		Category: "attendance",
		Action:   "Refresh the attendance status and try again.",
	}
}

// NewStorageError は永続化失敗エラーを生成する。
// コンポーネント内部でログ出力に使い、呼び出し元には返さない。
func NewStorageError(key string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailed,
		Message:  fmt.Sprintf("storage operation failed for %s: %v", key, cause),
		Category: "system",
		Action:   "Changes are kept in memory until the next successful save.",
	}
}

// NewUnauthorizedError はログイントークン不正エラーを生成する。
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("Sign-in failed: %s", reason),
		Category: "session",
		Action:   "Sign in again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("This action requires the %s role.", role),
		Category: "session",
		Action:   "Sign in with an account that has the required role.",
	}
}
