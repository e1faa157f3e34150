// Package auth はログイントークンの発行と検証、セッションへのログインを提供する。
//
// ログイントークンはHS256で署名したJWTで、subjectにユーザーIDを持つ。
// 検証に成功したトークンの内容をsession.Store.Loginに渡して認証済みにする。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims はログイントークンのクレーム。
type Claims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig はトークン発行の設定。
type TokenConfig struct {
	// Issuer はissクレームの値。
	Issuer string
	// TTL はトークンの有効期間（デフォルト: 24時間）。
	TTL time.Duration
	// Now は現在時刻の取得関数。
	Now func() time.Time
}

// DefaultTokenConfig はデフォルトのトークン設定を返す。
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer: "eventease",
		TTL:    24 * time.Hour,
		Now:    time.Now,
	}
}

// TokenService はログイントークンを発行・検証する。
type TokenService struct {
	secret []byte
	config TokenConfig
}

// NewTokenService はTokenServiceを生成する。secretは空であってはならない。
func NewTokenService(secret string, config TokenConfig) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("login token secret is empty")
	}
	defaults := DefaultTokenConfig()
	if config.Issuer == "" {
		config.Issuer = defaults.Issuer
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	return &TokenService{secret: []byte(secret), config: config}, nil
}

// Issue はユーザー情報を埋め込んだ署名済みトークンを返す。
func (s *TokenService) Issue(userID, username, email string, roles []string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := s.config.Now()
	claims := Claims{
		Username: username,
		Email:    email,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign login token: %w", err)
	}
	return signed, nil
}

// Parse はトークンの署名、署名方式、発行者、有効期限を検証してクレームを返す。
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.config.Now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid login token")
	}
	if claims.Subject == "" {
		return nil, errors.New("login token has no subject")
	}
	return claims, nil
}
