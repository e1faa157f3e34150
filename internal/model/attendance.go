package model

import "time"

// AttendanceStatus は(イベント, ユーザー)ごとの出欠状態を表す。
type AttendanceStatus string

const (
	AttendanceStatusRegistered AttendanceStatus = "Registered"
	AttendanceStatusPresent    AttendanceStatus = "Present"
	AttendanceStatusCheckedOut AttendanceStatus = "CheckedOut"
	AttendanceStatusAbsent     AttendanceStatus = "Absent"
	AttendanceStatusCancelled  AttendanceStatus = "Cancelled"
)

// AttendanceRecord は1ユーザーの1イベントに対する出欠記録を表す。
// ユーザー情報は登録時点のスナップショット。
type AttendanceRecord struct {
	ID           string           `json:"attendanceId"`
	EventID      int              `json:"eventId"`
	UserID       string           `json:"userId"`
	UserName     string           `json:"userName,omitempty"`
	UserEmail    string           `json:"userEmail,omitempty"`
	Status       AttendanceStatus `json:"status"`
	RegisteredAt time.Time        `json:"registeredAt"`
	CheckedInAt  *time.Time       `json:"checkedInAt,omitempty"`
	CheckedOutAt *time.Time       `json:"checkedOutAt,omitempty"`
	Notes        string           `json:"notes,omitempty"`
}

// Duration はチェックインからチェックアウトまでの滞在時間を返す。
// どちらかが未記録の場合はfalseを返す。
func (r *AttendanceRecord) Duration() (time.Duration, bool) {
	if r.CheckedInAt == nil || r.CheckedOutAt == nil {
		return 0, false
	}
	return r.CheckedOutAt.Sub(*r.CheckedInAt), true
}

// IsPresent は出席扱い（Present または CheckedOut）かどうかを返す。
func (r *AttendanceRecord) IsPresent() bool {
	return r.Status == AttendanceStatusPresent || r.Status == AttendanceStatusCheckedOut
}

// EventAttendanceSummary はイベント単位の出欠集計を表す。
// TotalRegisteredは取消以外の全記録数。
type EventAttendanceSummary struct {
	EventID         int                `json:"eventId"`
	EventName       string             `json:"eventName"`
	TotalRegistered int                `json:"totalRegistered"`
	TotalPresent    int                `json:"totalPresent"`
	TotalAbsent     int                `json:"totalAbsent"`
	TotalCheckedOut int                `json:"totalCheckedOut"`
	AttendanceRate  float64            `json:"attendanceRate"`
	Attendees       []AttendanceRecord `json:"attendees"`
}

// Rate は (Present + CheckedOut) / Registered × 100 を返す。登録0件なら0。
func (s *EventAttendanceSummary) Rate() float64 {
	if s.TotalRegistered == 0 {
		return 0
	}
	return float64(s.TotalPresent+s.TotalCheckedOut) / float64(s.TotalRegistered) * 100
}

// UserAttendanceHistory はユーザー単位の出欠履歴と集計を表す。
type UserAttendanceHistory struct {
	UserID                string             `json:"userId"`
	UserName              string             `json:"userName,omitempty"`
	Records               []AttendanceRecord `json:"attendanceRecords"`
	TotalEventsAttended   int                `json:"totalEventsAttended"`
	TotalEventsRegistered int                `json:"totalEventsRegistered"`
	AttendanceRate        float64            `json:"attendanceRate"`
}

// 変更通知に載せる出欠操作の種別。
const (
	AttendanceActionRegistered = "UserRegistered"
	AttendanceActionCheckedIn  = "UserCheckedIn"
	AttendanceActionCheckedOut = "UserCheckedOut"
	AttendanceActionCancelled  = "RegistrationCancelled"
	AttendanceActionAbsent     = "MarkedAbsent"
)
