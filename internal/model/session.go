package model

import (
	"maps"
	"slices"
	"time"
)

// NavigationHistoryLimit はナビゲーション履歴の最大保持件数。
const NavigationHistoryLimit = 10

// UserSession はクライアント常駐のユーザーセッションを表す。
// 期限切れやクリア時は部分的に再利用せず、丸ごと新しいセッションに置き換える。
type UserSession struct {
	SessionID         string          `json:"sessionId"`
	SessionStartTime  time.Time       `json:"sessionStartTime"`
	LastActivity      time.Time       `json:"lastActivity"`
	User              UserInfo        `json:"user"`
	Preferences       UserPreferences `json:"preferences"`
	State             SessionState    `json:"state"`
	NavigationHistory []string        `json:"navigationHistory"`
}

// UserInfo はセッションが保持するユーザー識別情報。
// ゼロ値は未認証の匿名ユーザーを表す。
type UserInfo struct {
	UserID          string     `json:"userId,omitempty"`
	Username        string     `json:"username,omitempty"`
	Email           string     `json:"email,omitempty"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	Roles           []string   `json:"roles"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
}

// HasRole は指定ロールを持つかどうかを返す。
func (u UserInfo) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// UserPreferences はユーザー設定。
// 既知のキーは型付きフィールド、それ以外はCustomSettingsに格納する。
type UserPreferences struct {
	Theme               string         `json:"theme"`
	Language            string         `json:"language"`
	TimeZone            string         `json:"timeZone"`
	EnableNotifications bool           `json:"enableNotifications"`
	DefaultEventView    string         `json:"defaultEventView"`
	PageSize            int            `json:"pageSize"`
	FavoriteCategories  []string       `json:"favoriteCategories"`
	CustomSettings      map[string]any `json:"customSettings"`
}

// DefaultPreferences は初期状態のユーザー設定を返す。
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		Theme:               "light",
		Language:            "en",
		TimeZone:            "UTC",
		EnableNotifications: true,
		DefaultEventView:    "grid",
		PageSize:            10,
		FavoriteCategories:  []string{},
		CustomSettings:      map[string]any{},
	}
}

// SessionState は画面をまたいで引き継ぐ一時的なUI状態。
type SessionState struct {
	CurrentPage          string          `json:"currentPage,omitempty"`
	LastSearch           *SearchCriteria `json:"lastSearch,omitempty"`
	ViewedEventIDs       []int           `json:"viewedEventIds"`
	BookmarkedEventIDs   []int           `json:"bookmarkedEventIds"`
	ComponentStates      map[string]any  `json:"componentStates"`
	LastSelectedCategory string          `json:"lastSelectedCategory,omitempty"`
	CurrentEventID       *int            `json:"currentEventId,omitempty"`
	HasUnsavedChanges    bool            `json:"hasUnsavedChanges"`
}

// NewUserSession は既定値で初期化された新しいセッションを返す。
func NewUserSession(sessionID string, now time.Time) UserSession {
	return UserSession{
		SessionID:        sessionID,
		SessionStartTime: now,
		LastActivity:     now,
		User:             UserInfo{Roles: []string{}},
		Preferences:      DefaultPreferences(),
		State: SessionState{
			ViewedEventIDs:     []int{},
			BookmarkedEventIDs: []int{},
			ComponentStates:    map[string]any{},
		},
		NavigationHistory: []string{},
	}
}

// IsExpired は最終アクティビティからtimeout以上経過しているかを返す。
func (s *UserSession) IsExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) >= timeout
}

// Duration はセッション開始からの経過時間を返す。
func (s *UserSession) Duration(now time.Time) time.Duration {
	return now.Sub(s.SessionStartTime)
}

// UpdateActivity は最終アクティビティ時刻を更新する。
func (s *UserSession) UpdateActivity(now time.Time) {
	s.LastActivity = now
}

// AddToNavigationHistory はページを履歴の先頭に追加し、上限を超えた古い履歴を削除する。
func (s *UserSession) AddToNavigationHistory(page string) {
	history := make([]string, 0, len(s.NavigationHistory)+1)
	history = append(history, page)
	history = append(history, s.NavigationHistory...)
	if len(history) > NavigationHistoryLimit {
		history = history[:NavigationHistoryLimit]
	}
	s.NavigationHistory = history
}

// Normalize はJSON復元後のnilスライス・nilマップを空値に揃える。
func (s *UserSession) Normalize() {
	if s.User.Roles == nil {
		s.User.Roles = []string{}
	}
	if s.Preferences.FavoriteCategories == nil {
		s.Preferences.FavoriteCategories = []string{}
	}
	if s.Preferences.CustomSettings == nil {
		s.Preferences.CustomSettings = map[string]any{}
	}
	if s.State.ViewedEventIDs == nil {
		s.State.ViewedEventIDs = []int{}
	}
	if s.State.BookmarkedEventIDs == nil {
		s.State.BookmarkedEventIDs = []int{}
	}
	if s.State.ComponentStates == nil {
		s.State.ComponentStates = map[string]any{}
	}
	if s.NavigationHistory == nil {
		s.NavigationHistory = []string{}
	}
}

// Clone はスライスとマップを複製したコピーを返す。
// マップの値そのものは浅いコピーになる。
func (s UserSession) Clone() UserSession {
	c := s
	c.User.Roles = slices.Clone(s.User.Roles)
	if s.User.LastLogin != nil {
		t := *s.User.LastLogin
		c.User.LastLogin = &t
	}
	c.Preferences.FavoriteCategories = slices.Clone(s.Preferences.FavoriteCategories)
	c.Preferences.CustomSettings = maps.Clone(s.Preferences.CustomSettings)
	c.State.ViewedEventIDs = slices.Clone(s.State.ViewedEventIDs)
	c.State.BookmarkedEventIDs = slices.Clone(s.State.BookmarkedEventIDs)
	c.State.ComponentStates = maps.Clone(s.State.ComponentStates)
	if s.State.LastSearch != nil {
		ls := *s.State.LastSearch
		c.State.LastSearch = &ls
	}
	if s.State.CurrentEventID != nil {
		id := *s.State.CurrentEventID
		c.State.CurrentEventID = &id
	}
	c.NavigationHistory = slices.Clone(s.NavigationHistory)
	c.Normalize()
	return c
}
