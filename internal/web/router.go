package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/security"
)

// HealthChecker はヘルスチェックが必要とするDB疎通確認のインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// セッション
	Store          SessionStoreInterface
	SnapshotSource middleware.SnapshotSource

	// 上流API
	API UpstreamAPIInterface

	// ミドルウェア依存
	RateLimiter *middleware.RateLimiter
	CSRFConfig  middleware.CSRFConfig

	// 表示
	Sanitizer security.DisplaySanitizerService
	Renderer  *Renderer

	// 計測・ログ
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
	Logger         *slog.Logger

	// 運用
	HealthChecker HealthChecker // nilの場合は常にokを返す

	// ハンドラー設定
	HandlerConfig HandlerConfig
}

// NewRouter は全画面のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 画面ルートのミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → RateLimit(General) → SessionContext → Logging → CSRF
//
// レート制限はセッション解決（上流への/api/me問い合わせ）より前段に置き、
// 超過リクエストが上流に届かないようにする。ロギングはuser_idを拾うため
// セッション解決より後段に置く。
//
// SessionContextは未認証リクエストも拒否せず通す。認証必須ページは
// ガードミドルウェアをグループ単位で重ねる。認可エンドポイント
// （/oauth/authorize）はログイン画面への誘導をハンドラー自身が行うため
// ガードの外に置く。運用エンドポイント（/health, /metrics）は
// セッション解決やレート制限の対象にしない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	h := NewHandlers(deps.Store, deps.API, deps.Sanitizer, deps.Metrics, deps.Renderer, deps.HandlerConfig)

	// --- 画面ルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSecurityHeadersMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewSessionContextMiddleware(deps.SnapshotSource))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// 認証不要のルート
		r.Get("/login", h.LoginPage)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", h.Login)
		r.Get("/register", h.RegisterPage)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/register", h.Register)
		r.Post("/logout", h.Logout)

		// 認可エンドポイント（未認証はハンドラーがログイン画面へ誘導する）
		r.Route("/oauth/authorize", func(r chi.Router) {
			r.Get("/", h.ConsentPage)
			r.Post("/", h.Decide)
		})

		// 認証が必要なルート
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewGuardMiddleware(false, middleware.GuardConfig{
				DeniedHandler: h.RenderDenied,
			}))

			r.Get("/", h.Home)

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", h.ProfilePage)
				r.Post("/", h.UpdateProfile)
				r.Post("/password", h.ChangePassword)
			})
		})

		// 管理者専用のルート
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewGuardMiddleware(true, middleware.GuardConfig{
				DeniedHandler: h.RenderDenied,
			}))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.AdminUsersPage)
				r.Post("/", h.AdminCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/edit", h.AdminEditUserPage)
					r.Post("/edit", h.AdminUpdateUser)
					r.Post("/role", h.AdminUpdateUserRole)
					r.Post("/delete", h.AdminDeleteUser)
				})
			})

			r.Route("/applications", func(r chi.Router) {
				r.Get("/", h.AdminAppsPage)
				r.Post("/", h.AdminCreateApp)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/edit", h.AdminEditAppPage)
					r.Post("/edit", h.AdminUpdateApp)
					r.Post("/toggle", h.AdminToggleApp)
					r.Post("/toggle-trusted", h.AdminToggleAppTrusted)
					r.Post("/delete", h.AdminDeleteApp)
				})
			})
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
