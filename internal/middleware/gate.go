package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/newsdesk/internal/model"
)

// ゲートの判定結果。メトリクスのラベルに使用する。
const (
	DecisionPass            = "pass"
	DecisionGuestRedirect   = "guest_redirect"
	DecisionLoginRedirect   = "login_redirect"
	DecisionUnauthenticated = "unauthenticated"
	DecisionForbidRedirect  = "forbidden_redirect"
	DecisionForbidden       = "forbidden"
)

// GateRecorder はゲートの判定結果を記録する。metrics.Collectorが満たす。
type GateRecorder interface {
	RecordGateDecision(decision string)
}

// GateConfig は認可ゲートの設定。
type GateConfig struct {
	Routes   *RouteTable
	Resolver IdentityResolver
	Recorder GateRecorder
	// LoginPath は未認証のページアクセスのリダイレクト先。デフォルトは"/login"。
	LoginPath string
	// HomePath はログイン済み利用者がゲスト専用ページを開いた場合や
	// 権限不足の場合のリダイレクト先。デフォルトは"/"。
	HomePath string
}

// NewGateMiddleware はすべてのリクエストに対して認可判定を行うミドルウェアを返す。
//
// クライアントが送ったX-User-*ヘッダーは常に除去し、セッションが解決できた場合のみ
// 検証済みの値で設定し直す。判定に応じてページはリダイレクト、APIはJSONで拒否する。
func NewGateMiddleware(config GateConfig) func(next http.Handler) http.Handler {
	routes := config.Routes
	if routes == nil {
		routes = DefaultRouteTable()
	}
	resolver := config.Resolver
	if resolver == nil {
		resolver = ResolverChain(nil)
	}
	loginPath := config.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	homePath := config.HomePath
	if homePath == "" {
		homePath = "/"
	}
	record := func(decision string) {
		if config.Recorder != nil {
			config.Recorder.RecordGateDecision(decision)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stripIdentityHeaders(r)

			route := routes.Classify(r.Method, r.URL.Path)
			res := resolver.Resolve(r)

			switch route.Class {
			case ClassGuestOnly:
				if res.Found {
					record(DecisionGuestRedirect)
					http.Redirect(w, r, homePath, http.StatusSeeOther)
					return
				}
			case ClassProtected, ClassAdminOrWriter, ClassAdminOnly:
				if !res.Found {
					if route.API {
						record(DecisionUnauthenticated)
						WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
						return
					}
					record(DecisionLoginRedirect)
					target := loginPath + "?callbackUrl=" + url.QueryEscape(r.URL.RequestURI())
					http.Redirect(w, r, target, http.StatusSeeOther)
					return
				}
				if !roleAllowed(route.Class, res.Identity.Role) {
					slog.Info("access denied by role",
						slog.String("user_id", res.Identity.UserID),
						slog.String("role", string(res.Identity.Role)),
						slog.String("route_class", route.Class.String()),
						slog.String("path", r.URL.Path),
					)
					if route.API {
						record(DecisionForbidden)
						WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
						return
					}
					record(DecisionForbidRedirect)
					http.Redirect(w, r, homePath+"?error=forbidden", http.StatusSeeOther)
					return
				}
			}

			record(DecisionPass)
			if res.Found {
				setIdentityHeaders(r, res.Identity)
				r = r.WithContext(ContextWithIdentity(r.Context(), res.Identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// roleAllowed はロールが区分の要求を満たすかを返す。
func roleAllowed(class RouteClass, role model.Role) bool {
	switch class {
	case ClassAdminOnly:
		return role == model.RoleAdmin
	case ClassAdminOrWriter:
		return role.CanWrite()
	case ClassProtected:
		return role.Valid()
	default:
		return true
	}
}
