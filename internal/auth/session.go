package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/newsdesk/internal/model"
)

// sessionIssuer はトークンのissクレームに設定する値。
const sessionIssuer = "newsdesk"

// SessionClaims はセッショントークンに格納するクレーム。
// 標準クレームに加えてユーザーの識別情報とsession_versionを持つ。
type SessionClaims struct {
	UserID  string     `json:"uid"`
	Email   string     `json:"email"`
	Name    string     `json:"name"`
	Role    model.Role `json:"role"`
	Version int        `json:"ver"`
	jwt.RegisteredClaims
}

// SessionIssuer はHS256署名のセッショントークンを発行・検証する。
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer はSessionIssuerを生成する。
func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue はユーザーの現在の状態からトークンを発行し、有効期限とともに返す。
func (s *SessionIssuer) Issue(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		UserID:  user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Role:    user.Role,
		Version: user.SessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse は署名と有効期限を検証し、トークンに含まれる識別情報を返す。
// 検証に失敗した場合はINVALID_SESSIONのAPIErrorを返す。
func (s *SessionIssuer) Parse(tokenString string) (*model.SessionIdentity, error) {
	if tokenString == "" {
		return nil, model.NewInvalidSessionError()
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.Join(model.NewInvalidSessionError(), err)
	}
	if !token.Valid || claims.UserID == "" || !claims.Role.Valid() {
		return nil, model.NewInvalidSessionError()
	}

	return &model.SessionIdentity{
		UserID:  claims.UserID,
		Email:   claims.Email,
		Name:    claims.Name,
		Role:    claims.Role,
		Version: claims.Version,
	}, nil
}
