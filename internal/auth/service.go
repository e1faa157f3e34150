package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/eventease/internal/model"
)

// SessionLogin はセッションへのログイン・ログアウト操作のインターフェース。
// session.Storeが実装する。
type SessionLogin interface {
	Login(ctx context.Context, userID, username, email string, roles []string) (model.UserSession, error)
	Logout(ctx context.Context) (model.UserSession, error)
}

// Service はログイントークンによる認証フローを提供する。
type Service struct {
	tokens   *TokenService
	sessions SessionLogin
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(tokens *TokenService, sessions SessionLogin, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
	}
}

// LoginWithToken はトークンを検証し、その内容で現在のセッションをログイン状態にする。
// 検証に失敗した場合はUNAUTHORIZEDのAPIErrorを返す。
func (s *Service) LoginWithToken(ctx context.Context, token string) (model.UserSession, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return model.UserSession{}, model.NewUnauthorizedError("token is missing")
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Warn("ログイントークンの検証に失敗しました",
			slog.String("error", err.Error()),
		)
		return model.UserSession{}, model.NewUnauthorizedError(reasonFor(err))
	}

	return s.sessions.Login(ctx, claims.Subject, claims.Username, claims.Email, claims.Roles)
}

// Logout は現在のセッションを匿名ユーザーに戻す。
func (s *Service) Logout(ctx context.Context) (model.UserSession, error) {
	return s.sessions.Logout(ctx)
}

// reasonFor は利用者向けの失敗理由を返す。内部の詳細は含めない。
func reasonFor(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	default:
		return "token is invalid"
	}
}
