package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

const (
	// csrfCookieName はCSRFトークンのCookie名。SPAが読み取ってヘッダーに載せるためHttpOnlyにしない。
	csrfCookieName = "csrf_token"
	// csrfHeaderName はSPAがトークンを送り返すヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	defaultCSRFTokenTTL = 24 * time.Hour
)

// CSRFConfig はダブルサブミットCookie方式のCSRF対策の設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// TokenTTL はトークンCookieの有効期間。0の場合は24時間。
	TokenTTL time.Duration
	// ExemptPaths に一致するパスは検証しない。
	// 末尾が"/"のものは配下すべて、それ以外は完全一致で判定する。
	ExemptPaths []string
}

func (c CSRFConfig) cookie(token string) *http.Cookie {
	ttl := c.TokenTTL
	if ttl <= 0 {
		ttl = defaultCSRFTokenTTL
	}
	return &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFMiddleware は状態を変更するリクエストでCookieとヘッダーのトークン一致を要求する。
// 安全なメソッドでは検証せず、トークンCookieがなければ発行する。
// セッションCookieを持たないBearer認証のリクエストはブラウザから偽造できないため検証しない。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if c, err := r.Cookie(csrfCookieName); err != nil || c.Value == "" {
					if token, err := generateCSRFToken(); err == nil {
						http.SetCookie(w, config.cookie(token))
					} else {
						slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if isCSRFExempt(r, config.ExemptPaths) {
				next.ServeHTTP(w, r)
				return
			}

			if reason := csrfRejection(r); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFRejectedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// csrfRejection は検証に失敗した理由を返す。成功時は空文字列。
func csrfRejection(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing_cookie"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing_header"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "mismatch"
	}
	return ""
}

// NewCSRFTokenHandler はGET /api/csrf-tokenのハンドラーを返す。
// 既存のトークンCookieがあればその値を、なければ新しいトークンを発行して返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(csrfCookieName); err == nil {
			token = c.Value
		}
		if token == "" {
			var err error
			if token, err = generateCSRFToken(); err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			http.SetCookie(w, config.cookie(token))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// isCSRFExempt はCSRF検証を省略できるリクエストかを判定する。
func isCSRFExempt(r *http.Request, paths []string) bool {
	if r.Header.Get("Authorization") != "" {
		if _, err := r.Cookie(SessionCookieName); err != nil {
			return true
		}
	}
	p := cleanPath(r.URL.Path)
	for _, exempt := range paths {
		if strings.HasSuffix(exempt, "/") {
			if strings.HasPrefix(p, exempt) {
				return true
			}
			continue
		}
		if p == exempt {
			return true
		}
	}
	return false
}

// generateCSRFToken は32バイトの乱数を16進文字列で返す。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
