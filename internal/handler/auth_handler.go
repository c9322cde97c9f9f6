// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/newsdesk/internal/auth"
	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.Session, error)
	RequestReset(ctx context.Context, email string) error
	VerifyReset(ctx context.Context, email, code string) error
	CompleteReset(ctx context.Context, email, code, newPassword string) error
	RefreshSession(ctx context.Context, userID string) (*auth.Session, error)
	LogoutEverywhere(ctx context.Context, userID string) error
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// sessionCookies はセッションCookieの発行と削除を行う。
type sessionCookies struct {
	domain string
	secure bool
	maxAge int
}

func newSessionCookies(config AuthHandlerConfig) sessionCookies {
	return sessionCookies{domain: config.CookieDomain, secure: config.CookieSecure, maxAge: config.SessionMaxAge}
}

// set はセッショントークンをHttpOnly Cookieに設定する。
func (c sessionCookies) set(w http.ResponseWriter, session *auth.Session) {
	maxAge := c.maxAge
	if remaining := int(time.Until(session.ExpiresAt).Seconds()); remaining > 0 && (maxAge <= 0 || remaining < maxAge) {
		maxAge = remaining
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c sessionCookies) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	cookies sessionCookies
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &AuthHandler{
		service: service,
		config:  config,
		cookies: newSessionCookies(config),
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type verifyTokenRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// sessionResponse はセッション発行時のレスポンス。
// Cookieを使わないクライアント向けにトークンも返す。
type sessionResponse struct {
	User      sessionUserResponse `json:"user"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		User: sessionUserResponse{
			ID:    s.User.ID,
			Email: s.User.Email,
			Name:  s.User.Name,
			Role:  string(s.User.Role),
		},
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

// Register はメールアドレスとパスワードでユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login は認証情報を検証し、セッションCookieを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.cookies.set(w, session)
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Logout はセッションCookieを削除する。トークン自体はステートレスのため失効しない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll はsession_versionを進め、発行済みの全トークンを無効にする。
// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.service.LogoutEverywhere(r.Context(), actor.UserID); err != nil {
		handleServiceError(w, err)
		return
	}
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetCurrentUser(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// RefreshSession はデータベースの現在の状態からセッションを再発行する。
// POST /api/auth/session/refresh
func (h *AuthHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	session, err := h.service.RefreshSession(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.cookies.set(w, session)
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// ForgotPassword はリセットコードを発行する。
// 登録有無にかかわらず同じレスポンスを返す。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.RequestReset(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "登録済みのメールアドレスであれば、確認コードを送信しました。",
	})
}

// VerifyToken はリセットコードを検証する。コードは消費しない。
// POST /api/auth/verify-token
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.VerifyReset(r.Context(), req.Email, req.Code); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// ResetPassword はリセットコードを消費してパスワードを再設定する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.CompleteReset(r.Context(), req.Email, req.Code, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}
	// 再設定で旧トークンは失効しているためCookieも削除する
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /api/auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// 失敗した場合はログインページにエラー種別を付けてリダイレクトする。
// GET /api/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("stateパラメータが不正です"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("認可コードがありません"))
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		reason := "oauth_failed"
		if model.IsCode(err, model.ErrCodeConflict) {
			reason = "account_conflict"
		}
		slog.Error("oauth callback failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, h.config.BaseURL+"/login?error="+url.QueryEscape(reason), http.StatusSeeOther)
		return
	}

	// 4. セッションCookieを設定してフロントエンドにリダイレクト
	h.cookies.set(w, session)
	http.Redirect(w, r, h.config.BaseURL+"/", http.StatusSeeOther)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
