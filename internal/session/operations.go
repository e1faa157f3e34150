package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/eventease/internal/model"
)

// Login は認証済みのユーザー識別情報をセッションに設定する。
func (s *Store) Login(ctx context.Context, userID, username, email string, roles []string) (model.UserSession, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return s.Current(ctx), model.NewValidationError([]string{"User id is required."})
	}
	if roles == nil {
		roles = []string{}
	}

	sess, err := s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		oldUser := sess.User
		loginAt := now
		sess.User = model.UserInfo{
			UserID:          userID,
			Username:        username,
			Email:           email,
			IsAuthenticated: true,
			Roles:           slices.Clone(roles),
			LastLogin:       &loginAt,
		}
		return ChangeUserLogin, oldUser, sess.User, nil
	}, func(snapshot model.UserSession) {
		s.Authenticated.Publish(snapshot)
	})
	if err == nil {
		s.metrics.RecordSessionEvent("login")
		s.logger.Info("ユーザーがログインしました",
			slog.String("session_id", sess.SessionID),
			slog.String("user_id", userID),
		)
	}
	return sess, err
}

// Logout はユーザー識別情報を匿名ユーザーに戻す。
func (s *Store) Logout(ctx context.Context) (model.UserSession, error) {
	sess, err := s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		oldUser := sess.User
		sess.User = model.UserInfo{Roles: []string{}}
		return ChangeUserLogout, oldUser, sess.User, nil
	})
	if err == nil {
		s.metrics.RecordSessionEvent("logout")
		s.logger.Info("ユーザーがログアウトしました",
			slog.String("session_id", sess.SessionID),
		)
	}
	return sess, err
}

// UpdatePreferences はユーザー設定を丸ごと置き換える。
func (s *Store) UpdatePreferences(ctx context.Context, prefs model.UserPreferences) (model.UserSession, error) {
	if prefs.FavoriteCategories == nil {
		prefs.FavoriteCategories = []string{}
	}
	if prefs.CustomSettings == nil {
		prefs.CustomSettings = map[string]any{}
	}
	if prefs.PageSize <= 0 {
		return s.Current(ctx), model.NewValidationError([]string{"Page size must be a positive number."})
	}
	if _, err := json.Marshal(prefs.CustomSettings); err != nil {
		return s.Current(ctx), model.NewValidationError([]string{"Custom settings must be JSON-serializable."})
	}

	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		old := sess.Preferences
		sess.Preferences = prefs
		return ChangePreferencesUpdated, old, prefs, nil
	})
}

// UpdatePreference は1つの設定キーを更新する。
// theme, language, enableNotifications, pageSize は型付きフィールドに反映し、
// それ以外のキーはCustomSettingsに格納する。キーの大文字小文字と"-"/"_"は区別しない。
func (s *Store) UpdatePreference(ctx context.Context, key string, value any) (model.UserSession, error) {
	if strings.TrimSpace(key) == "" {
		return s.Current(ctx), model.NewValidationError([]string{"Preference key is required."})
	}

	apply, err := preferenceSetter(key, value)
	if err != nil {
		return s.Current(ctx), err
	}

	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		old := apply(&sess.Preferences)
		return changePreferencePrefix + key, old, value, nil
	})
}

// UpdateState は任意のコンポーネント状態を保存する。値はJSONに変換可能でなければならない。
func (s *Store) UpdateState(ctx context.Context, key string, value any) (model.UserSession, error) {
	if strings.TrimSpace(key) == "" {
		return s.Current(ctx), model.NewValidationError([]string{"State key is required."})
	}
	if _, err := json.Marshal(value); err != nil {
		return s.Current(ctx), model.NewValidationError([]string{"State value must be JSON-serializable."})
	}

	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		old, existed := sess.State.ComponentStates[key]
		if !existed {
			old = nil
		}
		sess.State.ComponentStates[key] = value
		return changeStatePrefix + key, old, value, nil
	})
}

// GetState はコンポーネント状態をT型で取得する。
// 保存層を経由してmap[string]anyなどに変わった値もJSON経由で変換し、
// キーが存在しない場合や変換に失敗した場合はdefを返す。
func GetState[T any](ctx context.Context, s *Store, key string, def T) T {
	raw, ok := s.Current(ctx).State.ComponentStates[key]
	if !ok || raw == nil {
		return def
	}
	if v, ok := raw.(T); ok {
		return v
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return def
	}
	var v T
	if err := json.Unmarshal(encoded, &v); err != nil {
		return def
	}
	return v
}

// TrackPageVisit は現在ページを更新し、ナビゲーション履歴の先頭に追加する。
func (s *Store) TrackPageVisit(ctx context.Context, page string) (model.UserSession, error) {
	page = strings.TrimSpace(page)
	if page == "" {
		return s.Current(ctx), model.NewValidationError([]string{"Page name is required."})
	}

	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		old := sess.State.CurrentPage
		sess.State.CurrentPage = page
		sess.AddToNavigationHistory(page)
		return ChangePageVisit, old, page, nil
	})
}

// TrackEventView は閲覧済みイベントに追加する。既に閲覧済みなら何もしない。
func (s *Store) TrackEventView(ctx context.Context, eventID int) (model.UserSession, error) {
	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		if slices.Contains(sess.State.ViewedEventIDs, eventID) {
			return "", nil, nil, nil
		}
		sess.State.ViewedEventIDs = append(sess.State.ViewedEventIDs, eventID)
		return ChangeEventViewed, nil, eventID, nil
	})
}

// ToggleBookmark はブックマークの有無を反転する。
func (s *Store) ToggleBookmark(ctx context.Context, eventID int) (model.UserSession, error) {
	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		idx := slices.Index(sess.State.BookmarkedEventIDs, eventID)
		wasBookmarked := idx >= 0
		if wasBookmarked {
			sess.State.BookmarkedEventIDs = slices.Delete(sess.State.BookmarkedEventIDs, idx, idx+1)
		} else {
			sess.State.BookmarkedEventIDs = append(sess.State.BookmarkedEventIDs, eventID)
		}
		return ChangeBookmarkToggled, wasBookmarked, !wasBookmarked, nil
	})
}

// IsBookmarked は指定イベントがブックマーク済みかどうかを返す。
func (s *Store) IsBookmarked(ctx context.Context, eventID int) bool {
	return slices.Contains(s.Current(ctx).State.BookmarkedEventIDs, eventID)
}

// SetLastSearch は最終検索条件を保存する。
func (s *Store) SetLastSearch(ctx context.Context, criteria model.SearchCriteria) (model.UserSession, error) {
	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		var old any
		if sess.State.LastSearch != nil {
			old = *sess.State.LastSearch
		}
		c := criteria
		sess.State.LastSearch = &c
		return ChangeLastSearchUpdated, old, criteria, nil
	})
}

// SetLastSelectedCategory は最後に選択したカテゴリを保存する。
func (s *Store) SetLastSelectedCategory(ctx context.Context, category string) (model.UserSession, error) {
	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		old := sess.State.LastSelectedCategory
		sess.State.LastSelectedCategory = category
		return ChangeCategorySelected, old, category, nil
	})
}

// SetCurrentEvent は表示中のイベントを設定する。nilで解除する。
func (s *Store) SetCurrentEvent(ctx context.Context, eventID *int) (model.UserSession, error) {
	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		var old, next any
		if sess.State.CurrentEventID != nil {
			old = *sess.State.CurrentEventID
		}
		if eventID != nil {
			id := *eventID
			sess.State.CurrentEventID = &id
			next = id
		} else {
			sess.State.CurrentEventID = nil
		}
		return ChangeCurrentEvent, old, next, nil
	})
}

// SetUnsavedChanges は未保存の変更フラグを更新する。
func (s *Store) SetUnsavedChanges(ctx context.Context, unsaved bool) (model.UserSession, error) {
	return s.mutate(ctx, func(sess *model.UserSession, now time.Time) (string, any, any, error) {
		old := sess.State.HasUnsavedChanges
		sess.State.HasUnsavedChanges = unsaved
		return ChangeUnsavedChanges, old, unsaved, nil
	})
}
