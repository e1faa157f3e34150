package model

import (
	"strings"
	"time"
)

// RegistrationStatus はイベント申込の状態を表す。
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "Pending"
	RegistrationStatusConfirmed RegistrationStatus = "Confirmed"
	RegistrationStatusCancelled RegistrationStatus = "Cancelled"
	RegistrationStatusWaitList  RegistrationStatus = "WaitList"
)

// Registration はイベントへの申込を表す。
// IDは受付時に単調増加で採番される。
type Registration struct {
	ID                    int                `json:"registrationId"`
	EventID               int                `json:"eventId"`
	FirstName             string             `json:"firstName"`
	LastName              string             `json:"lastName"`
	Email                 string             `json:"email"`
	PhoneNumber           string             `json:"phoneNumber"`
	Company               string             `json:"company,omitempty"`
	JobTitle              string             `json:"jobTitle,omitempty"`
	NumberOfAttendees     int                `json:"numberOfAttendees"`
	SpecialRequirements   string             `json:"specialRequirements,omitempty"`
	Comments              string             `json:"comments,omitempty"`
	AgreeToTerms          bool               `json:"agreeToTerms"`
	SubscribeToNewsletter bool               `json:"subscribeToNewsletter"`
	RegistrationDate      time.Time          `json:"registrationDate"`
	Status                RegistrationStatus `json:"status"`
	EventPrice            float64            `json:"eventPrice"`
}

// FullName は姓名を連結した表示名を返す。
func (r *Registration) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// TotalCost は参加人数×イベント価格を返す。
func (r *Registration) TotalCost() float64 {
	return float64(r.NumberOfAttendees) * r.EventPrice
}

// IsActive は取消されていない申込かどうかを返す。
func (r *Registration) IsActive() bool {
	return r.Status != RegistrationStatusCancelled
}

// RegistrationResult は申込・取消操作の結果を表す。
// 失敗時はErrに型付きエラーが入り、呼び出し元はAcceptedで分岐する。
type RegistrationResult struct {
	Accepted       bool               `json:"accepted"`
	Message        string             `json:"message"`
	RegistrationID *int               `json:"registrationId,omitempty"`
	Status         RegistrationStatus `json:"status,omitempty"`
	Err            *APIError          `json:"-"`
}

// RegistrationAccepted は成功結果を生成する。
func RegistrationAccepted(message string, id *int, status RegistrationStatus) RegistrationResult {
	return RegistrationResult{
		Accepted:       true,
		Message:        message,
		RegistrationID: id,
		Status:         status,
	}
}

// RegistrationRejected は失敗結果を生成する。
func RegistrationRejected(err *APIError) RegistrationResult {
	return RegistrationResult{
		Accepted: false,
		Message:  err.Message,
		Err:      err,
	}
}

// RegistrationStatistics はイベント単位の申込集計を表す。
type RegistrationStatistics struct {
	EventID                int `json:"eventId"`
	TotalRegistrations     int `json:"totalRegistrations"`
	ConfirmedRegistrations int `json:"confirmedRegistrations"`
	WaitlistRegistrations  int `json:"waitlistRegistrations"`
	CancelledRegistrations int `json:"cancelledRegistrations"`
	TotalAttendees         int `json:"totalAttendees"`
}
