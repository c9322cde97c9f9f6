package handler

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/newsdesk/internal/metrics"
	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
)

// HealthChecker はデータベース等の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	Resolver          middleware.IdentityResolver
	Routes            *middleware.RouteTable
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	HealthChecker     HealthChecker

	// StaticDir はページルートで配信するフロントエンドのビルド成果物。空の場合は配信しない。
	StaticDir string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメインサービス
	UserService     UserServiceInterface
	ArticleService  ArticleServiceInterface
	Importer        FeedImporter
	CommentService  CommentServiceInterface
	BookmarkService BookmarkServiceInterface
}

// preSessionAuthPaths はログイン前に呼ばれるためCSRF検証を行わない認証エンドポイント。
// ログアウトやセッション再発行はCookieのセッションで動くため含めない。
var preSessionAuthPaths = []string{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/forgot-password",
	"/api/auth/verify-token",
	"/api/auth/reset-password",
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → StatusMetrics → CORS → Gate → RateLimit(General) → CSRF
//
// 認可ゲートはページとAPIの両方に適用する。/api/auth/* は認証不要だが、
// 識別情報が解決できた場合はコンテキストに設定される。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	csrfConfig := deps.CSRF
	if len(csrfConfig.ExemptPaths) == 0 {
		csrfConfig.ExemptPaths = preSessionAuthPaths
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	// HTTPS配信（Secure Cookie）のときだけHSTSを付与する
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: csrfConfig.CookieSecure}))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewStatusMetricsMiddleware(collector))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewGateMiddleware(middleware.GateConfig{
		Routes:   deps.Routes,
		Resolver: deps.Resolver,
		Recorder: collector,
	}))
	r.Use(deps.RateLimiter.GeneralMiddleware())
	r.Use(middleware.NewCSRFMiddleware(csrfConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AuthService, deps.AuthConfig)
	articleHandler := NewArticleHandler(deps.ArticleService, deps.Importer)
	commentHandler := NewCommentHandler(deps.CommentService, deps.BookmarkService)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

	// --- 認証（IP単位のレート制限） ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Post("/logout-all", authHandler.LogoutAll)
		r.Get("/me", authHandler.Me)
		r.Post("/session/refresh", authHandler.RefreshSession)

		// パスワードリセット
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/verify-token", authHandler.VerifyToken)
		r.Post("/reset-password", authHandler.ResetPassword)

		// OAuthフロー
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
	})

	// --- プロフィール ---
	r.Route("/api/profile", func(r chi.Router) {
		r.Get("/", userHandler.GetProfile)
		r.Patch("/", userHandler.UpdateProfile)
		r.Put("/password", userHandler.ChangePassword)
	})

	// --- 管理者 ---
	r.Route("/api/admin/users", func(r chi.Router) {
		r.Get("/", userHandler.ListUsers)
		r.Put("/{id}/role", userHandler.ChangeRole)
		r.Delete("/{id}", userHandler.DeleteUser)
	})

	// --- カテゴリ ---
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", articleHandler.ListCategories)
		r.Post("/", articleHandler.CreateCategory)
		r.Delete("/{id}", articleHandler.DeleteCategory)
	})

	// --- 記事 ---
	r.Route("/api/articles", func(r chi.Router) {
		r.Get("/", articleHandler.ListArticles)
		r.Post("/", articleHandler.CreateArticle)
		r.Get("/mine", articleHandler.ListMine)
		r.Post("/import", articleHandler.ImportFeed)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", articleHandler.GetArticle)
			r.Put("/", articleHandler.UpdateArticle)
			r.Delete("/", articleHandler.DeleteArticle)
			r.Post("/publish", articleHandler.PublishArticle)
			r.Delete("/publish", articleHandler.UnpublishArticle)

			r.Get("/comments", commentHandler.ListComments)
			r.Post("/comments", commentHandler.CreateComment)
		})
	})

	r.Delete("/api/comments/{id}", commentHandler.DeleteComment)

	// --- ブックマーク ---
	r.Route("/api/bookmarks", func(r chi.Router) {
		r.Get("/", commentHandler.ListBookmarks)
		r.Put("/{articleID}", commentHandler.AddBookmark)
		r.Delete("/{articleID}", commentHandler.RemoveBookmark)
	})

	// --- ページ ---
	r.NotFound(notFoundHandler(deps.StaticDir))

	return r
}

// healthHandler はデータベースの疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// notFoundHandler はAPIパスにはJSONの404を返し、それ以外はフロントエンドの配信に回す。
func notFoundHandler(staticDir string) http.HandlerFunc {
	var pages http.Handler = http.NotFoundHandler()
	if staticDir != "" {
		pages = staticHandler(staticDir)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
				Code:     model.ErrCodeNotFound,
				Message:  "指定されたAPIが見つかりません。",
				Category: "request",
				Action:   "URLを確認してください。",
			})
			return
		}
		pages.ServeHTTP(w, r)
	}
}

// staticHandler はフロントエンドの静的ファイルを配信する。
// 存在しないページパスはクライアント側ルーティングのためindex.htmlを返す。
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		p := path.Clean("/" + r.URL.Path)
		if p != "/" {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
				http.ServeFile(w, r, filepath.Join(dir, "index.html"))
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}
