// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/eventease/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はリクエストコンテキストにユーザー識別情報を格納するためのキー。
	userContextKey = contextKey("user")
	// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
	// identityHolderContextKey は外側のミドルウェアが識別情報を受け取るためのキー。
	identityHolderContextKey = contextKey("identity_holder")
)

// requestIdentity は内側のミドルウェアで確定したセッションIDとユーザーIDを
// 外側のミドルウェア（アクセスログ）へ受け渡す。
type requestIdentity struct {
	sessionID string
	userID    string
}

func (h *requestIdentity) get() (sessionID, userID string) {
	return h.sessionID, h.userID
}

func contextWithIdentityHolder(ctx context.Context, h *requestIdentity) context.Context {
	return context.WithValue(ctx, identityHolderContextKey, h)
}

// SessionSource はアクティブなセッションを提供するインターフェース。
// session.Storeが実装する。
type SessionSource interface {
	// UpdateActivity は失効確認と最終アクティビティの更新を行い、現在のセッションを返す。
	UpdateActivity(ctx context.Context) model.UserSession
}

// NewSessionMiddleware はリクエストごとにセッションのアクティビティを更新し、
// セッションIDとユーザー識別情報をリクエストコンテキストに注入するミドルウェアを返す。
// 匿名ユーザーのリクエストも通過させる。認証が必要な経路はNewRequireRoleで保護する。
func NewSessionMiddleware(source SessionSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := source.UpdateActivity(r.Context())
			ctx := ContextWithSession(r.Context(), sess.SessionID, sess.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAuth は認証済みユーザーのみ通過させるミドルウェアを返す。
func NewRequireAuth() func(next http.Handler) http.Handler {
	return NewRequireRole("")
}

// NewRequireRole は認証済みかつ指定ロールを持つユーザーのみ通過させるミドルウェアを返す。
// roleが空の場合は認証のみを要求する。未認証は401、ロール不足は403を返す。
func NewRequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || !user.IsAuthenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("sign-in required"))
				return
			}
			if role != "" && !user.HasRole(role) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext はリクエストコンテキストからユーザー識別情報を取得する。
func UserFromContext(ctx context.Context) (model.UserInfo, bool) {
	user, ok := ctx.Value(userContextKey).(model.UserInfo)
	return user, ok
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーのIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, ok := UserFromContext(ctx)
	if !ok || user.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return user.UserID, nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return id, nil
}

// ContextWithSession はコンテキストにセッションIDとユーザー識別情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, sessionID string, user model.UserInfo) context.Context {
	if h, ok := ctx.Value(identityHolderContextKey).(*requestIdentity); ok {
		h.sessionID = sessionID
		h.userID = user.UserID
	}
	ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
	return context.WithValue(ctx, userContextKey, user)
}
