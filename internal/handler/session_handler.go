package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventease/internal/model"
)

// SessionServiceInterface はセッションハンドラーが必要とする操作。
// session.Storeが実装する。
type SessionServiceInterface interface {
	Current(ctx context.Context) model.UserSession
	StartNewSession(ctx context.Context) model.UserSession
	ClearSession(ctx context.Context) model.UserSession
	UpdatePreferences(ctx context.Context, prefs model.UserPreferences) (model.UserSession, error)
	UpdatePreference(ctx context.Context, key string, value any) (model.UserSession, error)
	UpdateState(ctx context.Context, key string, value any) (model.UserSession, error)
	TrackPageVisit(ctx context.Context, page string) (model.UserSession, error)
	TrackEventView(ctx context.Context, eventID int) (model.UserSession, error)
	ToggleBookmark(ctx context.Context, eventID int) (model.UserSession, error)
	IsBookmarked(ctx context.Context, eventID int) bool
	SetLastSearch(ctx context.Context, criteria model.SearchCriteria) (model.UserSession, error)
	SetLastSelectedCategory(ctx context.Context, category string) (model.UserSession, error)
	SetCurrentEvent(ctx context.Context, eventID *int) (model.UserSession, error)
	SetUnsavedChanges(ctx context.Context, unsaved bool) (model.UserSession, error)
}

// AuthServiceInterface はログイン・ログアウト操作。auth.Serviceが実装する。
type AuthServiceInterface interface {
	LoginWithToken(ctx context.Context, token string) (model.UserSession, error)
	Logout(ctx context.Context) (model.UserSession, error)
}

// SessionHandler はユーザーセッションのHTTPハンドラー。
type SessionHandler struct {
	sessions SessionServiceInterface
	auth     AuthServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(sessions SessionServiceInterface, auth AuthServiceInterface) *SessionHandler {
	return &SessionHandler{sessions: sessions, auth: auth}
}

type loginRequest struct {
	Token string `json:"token"`
}

type valueRequest struct {
	Value any `json:"value"`
}

type pageVisitRequest struct {
	Page string `json:"page"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type currentEventRequest struct {
	EventID *int `json:"eventId"`
}

type unsavedRequest struct {
	HasUnsavedChanges bool `json:"hasUnsavedChanges"`
}

type bookmarkResponse struct {
	EventID    int  `json:"eventId"`
	Bookmarked bool `json:"bookmarked"`
}

type stateResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// writeSession は変更操作の結果を書き込む。
func writeSession(w http.ResponseWriter, sess model.UserSession, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Get は現在のセッションを返す。
// GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Current(r.Context()))
}

// Login はログイントークンを検証してセッションを認証済みにする。
// トークンはボディのtokenまたはAuthorizationヘッダー（Bearer）で受け取る。
// POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	sess, err := h.auth.LoginWithToken(r.Context(), token)
	writeSession(w, sess, err)
}

// Logout はセッションを匿名ユーザーに戻す。
// POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.Logout(r.Context())
	writeSession(w, sess, err)
}

// StartNew は現在のセッションを破棄して新しいセッションを開始する。
// POST /api/session/new
func (h *SessionHandler) StartNew(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.StartNewSession(r.Context()))
}

// Clear は保存済みセッションを削除して新しいセッションを開始する。
// DELETE /api/session
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.ClearSession(r.Context()))
}

// UpdatePreferences はユーザー設定を丸ごと置き換える。
// PUT /api/session/preferences
func (h *SessionHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs model.UserPreferences
	if !decodeJSON(w, r, &prefs) {
		return
	}
	sess, err := h.sessions.UpdatePreferences(r.Context(), prefs)
	writeSession(w, sess, err)
}

// UpdatePreference はユーザー設定を1項目更新する。
// PUT /api/session/preferences/{key}
func (h *SessionHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.sessions.UpdatePreference(r.Context(), chi.URLParam(r, "key"), req.Value)
	writeSession(w, sess, err)
}

// GetState はコンポーネント状態を1項目返す。未設定の場合はnull。
// GET /api/session/state/{key}
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value := h.sessions.Current(r.Context()).State.ComponentStates[key]
	writeJSON(w, http.StatusOK, stateResponse{Key: key, Value: value})
}

// UpdateState はコンポーネント状態を1項目更新する。
// PUT /api/session/state/{key}
func (h *SessionHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.sessions.UpdateState(r.Context(), chi.URLParam(r, "key"), req.Value)
	writeSession(w, sess, err)
}

// TrackPageVisit はページ遷移を記録する。
// POST /api/session/visits
func (h *SessionHandler) TrackPageVisit(w http.ResponseWriter, r *http.Request) {
	var req pageVisitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.sessions.TrackPageVisit(r.Context(), req.Page)
	writeSession(w, sess, err)
}

// TrackEventView はイベント閲覧を記録する。
// POST /api/session/views/{eventID}
func (h *SessionHandler) TrackEventView(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	sess, err := h.sessions.TrackEventView(r.Context(), eventID)
	writeSession(w, sess, err)
}

// ToggleBookmark はブックマークを反転する。
// POST /api/session/bookmarks/{eventID}
func (h *SessionHandler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	sess, err := h.sessions.ToggleBookmark(r.Context(), eventID)
	writeSession(w, sess, err)
}

// IsBookmarked はブックマーク済みかどうかを返す。
// GET /api/session/bookmarks/{eventID}
func (h *SessionHandler) IsBookmarked(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bookmarkResponse{
		EventID:    eventID,
		Bookmarked: h.sessions.IsBookmarked(r.Context(), eventID),
	})
}

// SetLastSearch は最終検索条件を保存する。
// PUT /api/session/search
func (h *SessionHandler) SetLastSearch(w http.ResponseWriter, r *http.Request) {
	var criteria model.SearchCriteria
	if !decodeJSON(w, r, &criteria) {
		return
	}
	sess, err := h.sessions.SetLastSearch(r.Context(), criteria)
	writeSession(w, sess, err)
}

// SetCategory は最後に選択したカテゴリを保存する。
// PUT /api/session/category
func (h *SessionHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.sessions.SetLastSelectedCategory(r.Context(), req.Category)
	writeSession(w, sess, err)
}

// SetCurrentEvent は表示中のイベントを保存する。eventIdにnullを指定すると解除する。
// PUT /api/session/current-event
func (h *SessionHandler) SetCurrentEvent(w http.ResponseWriter, r *http.Request) {
	var req currentEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.sessions.SetCurrentEvent(r.Context(), req.EventID)
	writeSession(w, sess, err)
}

// SetUnsavedChanges は未保存の変更フラグを保存する。
// PUT /api/session/unsaved
func (h *SessionHandler) SetUnsavedChanges(w http.ResponseWriter, r *http.Request) {
	var req unsavedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.sessions.SetUnsavedChanges(r.Context(), req.HasUnsavedChanges)
	writeSession(w, sess, err)
}
