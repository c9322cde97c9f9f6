package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/newsdesk/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// Resolution はリゾルバーの解決結果を表す。
// Foundがfalseの場合、Identityは常にnil。
type Resolution struct {
	Found    bool
	Identity *model.SessionIdentity
}

// Found は解決済みのResolutionを返す。
func Found(id *model.SessionIdentity) Resolution {
	return Resolution{Found: true, Identity: id}
}

// NotFound は未解決のResolutionを返す。
func NotFound() Resolution {
	return Resolution{}
}

// IdentityResolver はリクエストから認証済みユーザー情報を解決する。
type IdentityResolver interface {
	Resolve(r *http.Request) Resolution
}

// ResolverFunc は関数をIdentityResolverとして扱うためのアダプター。
type ResolverFunc func(r *http.Request) Resolution

// Resolve はIdentityResolverインターフェースを実装する。
func (f ResolverFunc) Resolve(r *http.Request) Resolution {
	return f(r)
}

// TokenParser はセッショントークンを検証してユーザー情報を復元する。
// auth.Serviceが満たす。
type TokenParser interface {
	ResolveSession(token string) (*model.SessionIdentity, error)
}

// SessionVersionSource は失効判定に使うユーザーの現在のセッション世代を返す。
// auth.Serviceが満たす。
type SessionVersionSource interface {
	CurrentSessionVersion(ctx context.Context, userID string) (int, error)
}

// ResolverChain は登録順にリゾルバーを試し、最初に解決できた結果を返す。
type ResolverChain []IdentityResolver

var _ IdentityResolver = ResolverChain(nil)

// Resolve はIdentityResolverインターフェースを実装する。
func (c ResolverChain) Resolve(r *http.Request) Resolution {
	for _, resolver := range c {
		if res := resolver.Resolve(r); res.Found {
			return res
		}
	}
	return NotFound()
}

// NewCookieResolver はsession_token Cookieからセッションを解決するリゾルバーを返す。
func NewCookieResolver(parser TokenParser) IdentityResolver {
	return ResolverFunc(func(r *http.Request) Resolution {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			return NotFound()
		}
		return parseToken(parser, cookie.Value, "cookie")
	})
}

// NewBearerResolver はAuthorization: Bearerヘッダーからセッションを解決するリゾルバーを返す。
func NewBearerResolver(parser TokenParser) IdentityResolver {
	return ResolverFunc(func(r *http.Request) Resolution {
		authz := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(authz, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return NotFound()
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return NotFound()
		}
		return parseToken(parser, token, "bearer")
	})
}

func parseToken(parser TokenParser, token, source string) Resolution {
	id, err := parser.ResolveSession(token)
	if err != nil {
		slog.Debug("session token rejected",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return NotFound()
	}
	return Found(id)
}

// NewVersionCheckedResolver はinnerで解決したセッションの世代を検証するリゾルバーを返す。
// トークンの世代が保存済みの世代より古い場合は未解決として扱う。
// 世代の取得に失敗した場合も未解決として扱う。
func NewVersionCheckedResolver(inner IdentityResolver, source SessionVersionSource) IdentityResolver {
	return ResolverFunc(func(r *http.Request) Resolution {
		res := inner.Resolve(r)
		if !res.Found {
			return res
		}

		current, err := source.CurrentSessionVersion(r.Context(), res.Identity.UserID)
		if err != nil {
			if !model.IsCode(err, model.ErrCodeInvalidSession) {
				slog.Error("failed to load session version",
					slog.String("user_id", res.Identity.UserID),
					slog.String("error", err.Error()),
				)
			}
			return NotFound()
		}
		if res.Identity.Version < current {
			slog.Debug("session revoked",
				slog.String("user_id", res.Identity.UserID),
				slog.Int("token_version", res.Identity.Version),
				slog.Int("current_version", current),
			)
			return NotFound()
		}
		return res
	})
}
