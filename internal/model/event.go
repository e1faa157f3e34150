package model

import "time"

// Event はイベントカタログ上の1イベントを表す。
// Capacityはセッション中に変化しない前提で扱う。
type Event struct {
	ID          int       `json:"eventId"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Capacity    int       `json:"capacity"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
}

// SearchCriteria はイベント検索条件を表す。
// セッションの最終検索条件としても保存される。
type SearchCriteria struct {
	EventName string     `json:"eventName,omitempty"`
	Location  string     `json:"location,omitempty"`
	Category  string     `json:"category,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}
